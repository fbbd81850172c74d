package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Binary grid artifacts (.fgr) are a little-endian header followed by
// float64 cell values, with the whole payload zstd-compressed.
//
//	magic    [4]byte "FGR1"
//	rows     uint32
//	cols     uint32
//	nodata   float64
//	affine   [6]float64 (X0, DX, RX, Y0, RY, DY)
//	crsLen   uint32
//	crs      [crsLen]byte
//	data     [rows*cols]float64
var fgrMagic = [4]byte{'F', 'G', 'R', '1'}

const (
	float64ByteSize = 8
	fgrFixedHeader  = 4 + 4 + 4 + 8 + 6*8 + 4
	maxGridCells    = 1 << 28
)

var (
	encoderPool = sync.Pool{
		New: func() any {
			e, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
			if err != nil {
				panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
			}
			return e
		},
	}
	decoderPool = sync.Pool{
		New: func() any {
			d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
			}
			return d
		},
	}
)

// EncodeBinary serializes g into the compressed .fgr format.
func EncodeBinary(g *Grid) ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	crs := []byte(g.CRS.Def)
	raw := make([]byte, fgrFixedHeader+len(crs)+len(g.Data)*float64ByteSize)

	copy(raw[0:4], fgrMagic[:])
	le := binary.LittleEndian
	le.PutUint32(raw[4:], uint32(g.Rows))
	le.PutUint32(raw[8:], uint32(g.Cols))
	le.PutUint64(raw[12:], math.Float64bits(g.NoData))
	t := g.Transform
	for i, v := range []float64{t.X0, t.DX, t.RX, t.Y0, t.RY, t.DY} {
		le.PutUint64(raw[20+i*8:], math.Float64bits(v))
	}
	le.PutUint32(raw[68:], uint32(len(crs)))
	copy(raw[fgrFixedHeader:], crs)

	off := fgrFixedHeader + len(crs)
	for i, v := range g.Data {
		le.PutUint64(raw[off+i*float64ByteSize:], math.Float64bits(v))
	}

	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(raw, nil), nil
}

// DecodeBinary parses a compressed .fgr payload.
func DecodeBinary(data []byte) (*Grid, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	if len(raw) < fgrFixedHeader || !bytes.Equal(raw[0:4], fgrMagic[:]) {
		return nil, invalidGrid("not a binary grid payload")
	}

	le := binary.LittleEndian
	rows := int(le.Uint32(raw[4:]))
	cols := int(le.Uint32(raw[8:]))
	if rows <= 0 || cols <= 0 || rows*cols > maxGridCells {
		return nil, invalidGrid(fmt.Sprintf("binary grid shape %dx%d out of range", rows, cols))
	}
	var affine [6]float64
	for i := range affine {
		affine[i] = math.Float64frombits(le.Uint64(raw[20+i*8:]))
	}
	crsLen := int(le.Uint32(raw[68:]))
	want := fgrFixedHeader + crsLen + rows*cols*float64ByteSize
	if len(raw) != want {
		return nil, invalidGrid(fmt.Sprintf("binary grid has %d bytes, want %d", len(raw), want))
	}

	g := New(rows, cols, Transform{
		X0: affine[0], DX: affine[1], RX: affine[2],
		Y0: affine[3], RY: affine[4], DY: affine[5],
	}, CRS{Def: string(raw[fgrFixedHeader : fgrFixedHeader+crsLen])})
	g.NoData = math.Float64frombits(le.Uint64(raw[12:]))

	off := fgrFixedHeader + crsLen
	for i := range g.Data {
		g.Data[i] = math.Float64frombits(le.Uint64(raw[off+i*float64ByteSize:]))
	}
	return g, nil
}

// WriteBinary encodes g to w.
func WriteBinary(w io.Writer, g *Grid) error {
	b, err := EncodeBinary(g)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadBinary decodes a grid from r.
func ReadBinary(r io.Reader) (*Grid, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("raster: read binary grid: %w", err)
	}
	return DecodeBinary(b)
}
