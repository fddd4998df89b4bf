package config

import (
	"flag"
	"time"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-r string   runner shared secret
//	-b string   S3 bucket name
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w int      write URL validity, minutes
//
// Flags override environment values; anything not passed keeps its
// current value.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "secret key")
	fs.StringVar(&config.RunnerToken, "r", config.RunnerToken, "runner shared secret")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	writeTTLMinutes := fs.Int("w", int(config.WriteSASTTL.Minutes()), "write URL validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.WriteSASTTL = time.Duration(*writeTTLMinutes) * time.Minute
}
