package auth

// AccessLogger is the subset of accesslog.Sink the filter needs, kept as
// an interface so this package doesn't depend on the sink's concrete type.
type AccessLogger interface {
	LogHTTP(remoteIP, user, method, uri string, status int, bytes int64)
}

// LoggingFilter is the post-handler that writes one access-log line per
// completed request.
type LoggingFilter struct {
	Sink AccessLogger
}

func (f *LoggingFilter) PreHandle(_ *RequestContext) (bool, error) {
	return true, nil
}

func (f *LoggingFilter) PostHandle(ctx *RequestContext) {
	if f.Sink == nil {
		return
	}
	f.Sink.LogHTTP(ctx.RemoteIP, ctx.User, ctx.Method, ctx.URI, ctx.Status, ctx.Bytes)
}
