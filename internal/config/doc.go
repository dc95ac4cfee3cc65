// Package config provides configuration loading for the cephview server.
//
// Configuration lives in cephview.json or cephview.yaml. Values missing from
// the file fall back to defaults, CEPHVIEW_* environment variables override
// the file, and command-line flags override both.
//
// # Configuration File Structure
//
//	server:
//	  addr: "localhost:8080"
//	  allowedOrigins: ["http://localhost:5173"]
//	static:
//	  dir: "public"
//	session:
//	  maxSessions: 10000
//	  maxSessionsPerIP: 100
//	  idleTimeout: "30m"
//	  eviction: "lru"
//	upload:
//	  backend: "s3"
//	  maxFileSize: 20971520
//	  s3:
//	    bucket: "cephview-uploads"
//	    region: "eu-west-1"
//	log:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	cfg, err := config.LoadFile("cephview.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.ApplyEnv(os.Getenv)
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
