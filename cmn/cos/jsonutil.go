package cos

import jsoniter "github.com/json-iterator/go"

// JSON is the shared codec for diagnostic dumps (session parameters, stats
// snapshots) - never for the wire format, which stays raw fixed-width bytes
// throughout (§3).
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshalToString renders v for a log line; panics on a marshal error,
// which would mean the caller passed something pathological (a channel, a
// func) rather than a genuine runtime condition.
func MustMarshalToString(v any) string {
	b, err := JSON.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
