package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyRunId         = ContextKey("RunId")
	ContextKeyCorrelationId = ContextKey("CorrelationId")
	ContextKeyLegacyIPK     = ContextKey("LegacyIPK")
	ContextKeyBatchNo       = ContextKey("BatchNo")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// LogFields collects the correlation values present in ctx, keyed for logrus.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if v, ok := GetString(ctx, ContextKeyRunId); ok {
		fields["run_id"] = v
	}
	if v, ok := GetString(ctx, ContextKeyCorrelationId); ok {
		fields["correlation_id"] = v
	}
	if v, ok := GetString(ctx, ContextKeyLegacyIPK); ok {
		fields["ipk"] = v
	}
	if v, ok := GetInt(ctx, ContextKeyBatchNo); ok {
		fields["batch"] = v
	}
	return fields
}
