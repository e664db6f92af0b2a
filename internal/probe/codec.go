package probe

import (
	"Go2NetGuard/internal/model"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ToStruct converts a window report into a protobuf Struct. Counters travel
// as numbers, categories, verdicts and transitions as their names.
func ToStruct(r *model.WindowReport) (*structpb.Struct, error) {
	cats := make([]any, 0, model.NumCategories)
	for _, c := range r.Categories {
		cats = append(cats, map[string]any{
			"category":              c.Category.String(),
			"packets":               float64(c.Packets),
			"bytes":                 float64(c.Bytes),
			"pps":                   float64(c.PPS),
			"bps":                   float64(c.BPS),
			"attack":                c.Attack,
			"verdict":               c.Verdict.String(),
			"transition":            c.Transition.String(),
			"last_attack_ns":        float64(c.LastAttack),
			"cooldown_remaining_ms": float64(c.CooldownRemaining.Milliseconds()),
		})
	}
	return structpb.NewStruct(map[string]any{
		"id":              r.ID,
		"window_start_ns": float64(r.WindowStart),
		"window_end_ns":   float64(r.WindowEnd),
		"time":            timestamppb.New(r.Time).AsTime().Format(time.RFC3339Nano),
		"lanes":           float64(r.Lanes),
		"leader":          float64(r.Leader),
		"categories":      cats,
	})
}

// FromStruct is the inverse of ToStruct. Unknown category names are skipped.
func FromStruct(st *structpb.Struct) (*model.WindowReport, error) {
	f := st.GetFields()
	r := &model.WindowReport{
		ID:          f["id"].GetStringValue(),
		WindowStart: int64(f["window_start_ns"].GetNumberValue()),
		WindowEnd:   int64(f["window_end_ns"].GetNumberValue()),
		Lanes:       int(f["lanes"].GetNumberValue()),
		Leader:      int(f["leader"].GetNumberValue()),
	}
	if ts := f["time"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid report time %q: %w", ts, err)
		}
		r.Time = t
	}

	for _, v := range f["categories"].GetListValue().GetValues() {
		cf := v.GetStructValue().GetFields()
		c, err := model.ParseCategory(cf["category"].GetStringValue())
		if err != nil {
			continue
		}
		rep := model.CategoryReport{
			Category:          c,
			Packets:           uint64(cf["packets"].GetNumberValue()),
			Bytes:             uint64(cf["bytes"].GetNumberValue()),
			PPS:               uint64(cf["pps"].GetNumberValue()),
			BPS:               uint64(cf["bps"].GetNumberValue()),
			Attack:            cf["attack"].GetBoolValue(),
			LastAttack:        int64(cf["last_attack_ns"].GetNumberValue()),
			CooldownRemaining: time.Duration(cf["cooldown_remaining_ms"].GetNumberValue()) * time.Millisecond,
		}
		if cf["verdict"].GetStringValue() == model.Drop.String() {
			rep.Verdict = model.Drop
		}
		rep.Transition = parseTransition(cf["transition"].GetStringValue())
		r.Categories[c] = rep
	}
	return r, nil
}

func parseTransition(s string) model.Transition {
	for t := model.TransitionNone; t <= model.TransitionCooldown; t++ {
		if t.String() == s {
			return t
		}
	}
	return model.TransitionNone
}

// EncodeReport serializes a report to protobuf binary.
func EncodeReport(r *model.WindowReport) ([]byte, error) {
	st, err := ToStruct(r)
	if err != nil {
		return nil, fmt.Errorf("failed to convert report: %w", err)
	}
	return proto.Marshal(st)
}

// EncodeReportJSON renders a report as protobuf JSON.
func EncodeReportJSON(r *model.WindowReport) ([]byte, error) {
	st, err := ToStruct(r)
	if err != nil {
		return nil, fmt.Errorf("failed to convert report: %w", err)
	}
	return protojson.Marshal(st)
}

// DecodeReport parses protobuf binary produced by EncodeReport.
func DecodeReport(data []byte) (*model.WindowReport, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return FromStruct(&st)
}
