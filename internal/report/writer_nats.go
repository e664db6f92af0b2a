package report

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
)

func init() {
	RegisterWriter("nats", func(cfg *config.Config, def config.WriterDef) (model.Writer, error) {
		return probe.NewPublisher(cfg.NATS)
	})
}
