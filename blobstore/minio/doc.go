// Package minio keeps object blob vault content in MinIO or another S3
// compatible service (Ceph, Garage, SeaweedFS) through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "entitydb/")
//	db, err := entitydb.Open(ctx, dir, entitydb.WithObjectVault(store))
//
// Objects of unknown size are streamed with multipart uploads.
package minio
