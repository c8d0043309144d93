package s3cas

import (
	"context"
	"flag"
	"strconv"

	"xdao.co/nftcard/storage"
	"xdao.co/nftcard/storage/casregistry"
)

var flagCfg Config

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "s3",
		Description: "S3-compatible object storage (bucket)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagCfg.Bucket, "s3-bucket", "", "Bucket name (for --backend=s3)")
			fs.StringVar(&flagCfg.Region, "s3-region", "us-east-1", "AWS region")
			fs.StringVar(&flagCfg.Prefix, "s3-prefix", "", "Object key prefix")
			fs.StringVar(&flagCfg.Endpoint, "s3-endpoint", "", "Custom endpoint for S3-compatible services")
			fs.BoolVar(&flagCfg.UsePathStyle, "s3-path-style", false, "Use path-style addressing")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagCfg)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			c := Config{
				Bucket:          cfg["s3-bucket"],
				Region:          cfg["s3-region"],
				Prefix:          cfg["s3-prefix"],
				Endpoint:        cfg["s3-endpoint"],
				AccessKeyID:     cfg["s3-access-key-id"],
				SecretAccessKey: cfg["s3-secret-access-key"],
			}
			if v := cfg["s3-path-style"]; v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, err
				}
				c.UsePathStyle = b
			}
			return open(c)
		},
	})
}

func open(cfg Config) (storage.CAS, func() error, error) {
	cas, err := New(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return cas, nil, nil
}
