// Package s3 keeps object blob vault content in Amazon S3.
//
//	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "entitydb/")
//
//	db, err := entitydb.Open(ctx, dir, entitydb.WithObjectVault(store))
//
// Objects up to the part size are written with a single PutObject carrying
// a CRC32C checksum. Larger objects and objects of unknown size go through
// the multipart uploader of feature/s3/manager.
package s3
