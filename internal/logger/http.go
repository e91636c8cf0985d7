package logger

import (
	"log/slog"
	"net/http"
	"time"
)

type recorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

func (r *recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// 文档注释：运维端点访问日志
// 背景：批处理进程只暴露 /metrics，正常抓取量大，记为 Debug；非 2xx 提升为 Warn 便于发现错误的抓取配置。
// 约束：不读取请求体。
func AccessMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, req)
			level := slog.LevelDebug
			if rec.status >= 300 {
				level = slog.LevelWarn
			}
			l.Log(req.Context(), level, "http_access",
				"method", req.Method,
				"path", req.URL.Path,
				"status", rec.status,
				"bytes", rec.written,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", req.RemoteAddr,
			)
		})
	}
}
