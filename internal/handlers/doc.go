// Package handlers provides the HTTP API of the conversion service.
//
// Endpoints, all under /api/media/{id}:
//
//	GET    /                           record with its original URL
//	DELETE /?force=1                   trash, or remove with every file
//	GET    /conversions                declared conversions and their state
//	POST   /conversions?only=a,b&missing=1
//	GET    /url/{conversion}           public URL ("original" for the file itself)
//	GET    /temporary-url/{conversion}?expiry=10m
//	GET    /responsive/{conversion}    renditions and srcset
//	POST   /responsive/{conversion}    regenerate renditions
//	DELETE /responsive/{conversion}
//
// Health probes live at /health, /healthz, /livez and /readyz.
package handlers
