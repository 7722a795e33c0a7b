package app

import (
	"log"
	"mime"
)

// staticTypes covers the assets under web/static. Slim images may lack /etc/mime.types,
// and a script served as text/plain never runs.
var staticTypes = map[string]string{
	".css": "text/css; charset=utf-8",
	".js":  "text/javascript; charset=utf-8",
	".svg": "image/svg+xml",
}

func init() {
	for ext, typ := range staticTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			log.Printf("app: register %s as %s: %v", ext, typ, err)
		}
	}
}
