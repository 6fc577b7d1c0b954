package main

import (
	"context"
	"flag"
	"fmt"

	"imagefeed/internal/decode"
	"imagefeed/internal/logging"
	"imagefeed/source/folder"
	"imagefeed/source/recordio"
)

// pack converts a <root>/<class>/<image> tree into a record file.
func pack(args []string) (err error) {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	src := fs.String("src", "", "image folder, one subdirectory per class")
	out := fs.String("out", "images.rec", "record file to write")
	zstd := fs.Bool("zstd", false, "zstd-compress the record stream")
	datum := fs.Bool("datum", false, "wrap each image in an encoded caffe Datum")
	_ = fs.Parse(args)
	if *src == "" {
		return fmt.Errorf("-src is required")
	}

	in, err := folder.Open(*src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := recordio.Create(*out, *zstd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	ctx := context.Background()
	for range in.Len() {
		rec, err := in.Next(ctx)
		if err != nil {
			return err
		}
		if *datum {
			rec.Data = decode.AppendDatum(nil, decode.DatumMessage{Data: rec.Data, Label: rec.Label, Encoded: true})
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	logging.L().Info("packed", "out", *out, "records", in.Len(), "classes", len(in.Classes()), "zstd", *zstd, "datum", *datum)
	return nil
}
