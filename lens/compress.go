package lens

import (
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompress compresses a byte slice using zstd and returns the compressed data.
func ZstdCompress(dst, data []byte) []byte {
	encOpts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	}
	if len(data) > 1024*1024*100 { // update options for large payloads
		encOpts = append(encOpts, zstd.WithEncoderConcurrency(max(1, runtime.NumCPU()/2)))
	}
	encoder, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		panic(err) // theoretically not possible
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, dst)
}

// ZstdDecompress decompresses a zstd-compressed byte slice and returns the original data.
func ZstdDecompress(dst, data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, dst)
}

// SnappyCompress compresses a byte slice into the snappy block format.
func SnappyCompress(dst, data []byte) []byte {
	return s2.EncodeSnappyBetter(dst, data)
}

// SnappyDecompress decompresses a snappy block.
func SnappyDecompress(dst, data []byte) ([]byte, error) {
	return snappy.Decode(dst, data)
}

// compressBody applies the content encoding named by compression, returning the encoded data
// and the Content-Encoding header value (empty when not compressed).
func compressBody(compression string, data []byte) ([]byte, string, error) {
	switch compression {
	case "", CompressionNone:
		return data, "", nil
	case CompressionZstd:
		return ZstdCompress(nil, data), CompressionZstd, nil
	case CompressionSnappy:
		return SnappyCompress(nil, data), CompressionSnappy, nil
	default:
		return nil, "", fmt.Errorf("unknown compression %q", compression)
	}
}

// decompressBody reverses compressBody for the given Content-Encoding.
func decompressBody(contentEncoding string, data []byte) ([]byte, error) {
	switch contentEncoding {
	case "", CompressionNone:
		return data, nil
	case CompressionZstd:
		return ZstdDecompress(nil, data)
	case CompressionSnappy:
		return SnappyDecompress(nil, data)
	default:
		return nil, fmt.Errorf("unknown content encoding %q", contentEncoding)
	}
}
