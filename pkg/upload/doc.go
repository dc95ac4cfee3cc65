// Package upload stores the image payloads referenced by overlay images.
//
// The overlay registry never sees image bytes. The viewer first uploads a
// radiograph over plain HTTP, receives an ID and URL, and then adds an
// overlay image whose Source is that URL:
//
//  1. Client performs HTTP POST of the file to /api/uploads
//  2. Server sniffs the content type, streams the bytes to the store and
//     returns {"id": "...", "url": "/api/uploads/..."}
//  3. Client sends an addImage command with image.source set to the URL
//  4. Renderers fetch the URL, which streams the bytes back (DiskStore) or
//     redirects to a presigned URL (S3Store)
//
// # Backends
//
//	store, err := upload.NewDiskStore("/var/lib/cephview/uploads", 20<<20)
//	// or
//	store := upload.NewS3Store(s3Client, "bucket", "uploads/", 20<<20)
//
// # Security
//
// The handler detects the MIME type server-side with http.DetectContentType
// and only accepts Config.AllowedTypes (image/* by default). Client-provided
// part headers are not trusted. Request bodies are capped before parsing.
package upload
