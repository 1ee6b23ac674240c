package blobvault

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how blob content is compressed at rest.
type Compression uint8

const (
	// CompressionNone stores content as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, fmt.Errorf("blobvault: unknown compression %q", s)
}

// ErrCorruptContent is returned when stored content cannot be decoded.
var ErrCorruptContent = errors.New("blobvault: corrupt content")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Stored content layout:
//
//	[compression u8][uncompressed size u64 LE] then blocks of
//	[uncompressed size u32][compressed size u32][data...]
//
// A compressed size of 0 means the block is stored uncompressed.
const (
	contentHeaderSize = 9
	blockHeaderSize   = 8
	blockSize         = 256 * 1024
)

// compressBlock frames one block, falling back to raw storage when
// compression does not help.
func compressBlock(dst, data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(data)))
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		dst = append(dst, hdr[:]...)
		return append(dst, data...), nil
	}
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(compressed)))
	dst = append(dst, hdr[:]...)
	return append(dst, compressed...), nil
}

func decompressBlock(data []byte, rawSize uint32, c Compression) ([]byte, error) {
	result := make([]byte, rawSize)
	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(data, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptContent, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptContent)
		}
		return result, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		decoded, err := dec.DecodeAll(data, result[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptContent, err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptContent)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: compressed block in %s content", ErrCorruptContent, c)
}

// encodeContent copies r into w in the stored layout and returns the
// uncompressed size. The size field of the header is left zero; callers
// patch it with putContentSize once the copy is complete.
func encodeContent(w io.Writer, r io.Reader, c Compression) (int64, error) {
	var hdr [contentHeaderSize]byte
	hdr[0] = byte(c)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}

	var total int64
	buf := make([]byte, blockSize)
	var framed []byte
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			var ferr error
			framed, ferr = compressBlock(framed[:0], buf[:n], c)
			if ferr != nil {
				return total, ferr
			}
			if _, werr := w.Write(framed); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// putContentSize writes the uncompressed size into an encoded header.
func putContentSize(hdr []byte, size int64) {
	binary.LittleEndian.PutUint64(hdr[1:contentHeaderSize], uint64(size))
}

// contentSizeOffset is the position of the size field in the header.
const contentSizeOffset = 1

// contentReader decodes stored content block by block.
type contentReader struct {
	r    *bufio.Reader
	c    io.Closer
	comp Compression
	size int64
	left int64
	cur  []byte
}

// newContentReader parses the content header of rc.
func newContentReader(rc io.ReadCloser) (*contentReader, error) {
	br := bufio.NewReader(rc)
	var hdr [contentHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: short header", ErrCorruptContent)
	}
	comp := Compression(hdr[0])
	if comp > CompressionZSTD {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: compression tag %d", ErrCorruptContent, hdr[0])
	}
	size := int64(binary.LittleEndian.Uint64(hdr[1:]))
	return &contentReader{r: br, c: rc, comp: comp, size: size, left: size}, nil
}

func (cr *contentReader) Read(p []byte) (int, error) {
	for len(cr.cur) == 0 {
		if cr.left <= 0 {
			return 0, io.EOF
		}
		if err := cr.nextBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, cr.cur)
	cr.cur = cr.cur[n:]
	return n, nil
}

func (cr *contentReader) nextBlock() error {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(cr.r, hdr[:]); err != nil {
		return fmt.Errorf("%w: short block header", ErrCorruptContent)
	}
	raw := binary.LittleEndian.Uint32(hdr[0:])
	stored := binary.LittleEndian.Uint32(hdr[4:])
	if raw == 0 || int64(raw) > cr.left || raw > blockSize || stored > blockSize*2 {
		return fmt.Errorf("%w: block sizes %d/%d", ErrCorruptContent, raw, stored)
	}
	if stored == 0 {
		block := make([]byte, raw)
		if _, err := io.ReadFull(cr.r, block); err != nil {
			return fmt.Errorf("%w: short block", ErrCorruptContent)
		}
		cr.cur = block
	} else {
		data := make([]byte, stored)
		if _, err := io.ReadFull(cr.r, data); err != nil {
			return fmt.Errorf("%w: short block", ErrCorruptContent)
		}
		block, err := decompressBlock(data, raw, cr.comp)
		if err != nil {
			return err
		}
		cr.cur = block
	}
	cr.left -= int64(raw)
	return nil
}

// Size returns the uncompressed content size.
func (cr *contentReader) Size() int64 { return cr.size }

func (cr *contentReader) Close() error { return cr.c.Close() }
