package httpx

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// CachingFileServer serves the pre-rendered site (calculator pages, blog) with cache headers.
// /api/ 配下はここに来ない前提だが、来た場合は index.html を返さず 404 にする。
func CachingFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestPath := r.URL.Path
		if strings.HasPrefix(requestPath, "/api/") {
			http.NotFound(w, r)
			return
		}
		ext := strings.ToLower(filepath.Ext(requestPath))
		localPath := filepath.Join(dir, filepath.Clean("/"+requestPath))

		if fi, err := os.Stat(localPath); err == nil && !fi.IsDir() {
			w.Header().Set("Cache-Control", cacheControl(requestPath, ext))
			http.ServeFile(w, r, localPath)
			return
		}

		// 静的サイトはディレクトリごとに index.html を持つ（/bmi-calculator/ → /bmi-calculator/index.html）
		if ext == "" {
			index := filepath.Join(localPath, "index.html")
			if fi, err := os.Stat(index); err == nil && !fi.IsDir() {
				w.Header().Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
				http.ServeFile(w, r, index)
				return
			}
		}
		http.NotFound(w, r)
	})
}

func cacheControl(requestPath, ext string) string {
	switch {
	case ext == ".html":
		// HTML は毎回再検証し、デプロイ後すぐ新しい記事・計算機ページを配る
		return "no-cache, max-age=0, must-revalidate"
	case strings.HasPrefix(requestPath, "/assets/") ||
		ext == ".js" || ext == ".css" || ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".svg" || ext == ".webp":
		// ハッシュ付きアセットは長期キャッシュ
		return "public, max-age=31536000, immutable"
	default:
		return "public, max-age=3600"
	}
}
