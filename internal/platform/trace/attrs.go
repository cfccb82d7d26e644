package trace

// Span attribute keys used by the shortening pipeline.
const (
	BitlyLongURL   = "bitly.long_url"
	BitlyGroupGUID = "bitly.group_guid"
	BitlyDomain    = "bitly.domain"
	BitlyCacheHit  = "bitly.cache_hit"
	BitlyOp        = "bitly.op"
)
