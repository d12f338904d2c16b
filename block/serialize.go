package block

import (
	"fmt"

	"github.com/arloliu/tachyon/compress"
	"github.com/arloliu/tachyon/encoding"
	"github.com/arloliu/tachyon/endian"
	"github.com/arloliu/tachyon/errs"
	"github.com/arloliu/tachyon/format"
	"github.com/arloliu/tachyon/labels"
	"github.com/arloliu/tachyon/section"
)

// Body layout, each section prefixed by a u32 length:
//
//	label_dictionary_section | postings_section | samples_section
//
// The dictionary holds one canonical label string per series in label-ID
// order, optionally compressed. Postings map label IDs to series IDs. The
// samples section holds per-series codec-produced timestamp and value blobs.

// encodeBody runs the block's buffered series through the selected codecs and
// assembles the serialized body.
func (b *Block) encodeBody() ([]byte, error) {
	engine := b.header.Flags.EndianEngine()

	// Label dictionary section.
	dictEnc := encoding.NewStringDictEncoder()
	defer dictEnc.Finish()
	for _, id := range b.order {
		lset := b.series[id].lset
		dictEnc.Write((&lset).Canonical())
	}

	dictCodec, err := compress.GetCodec(b.codecs.DictCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	dictPayload, err := dictCodec.Compress(dictEnc.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: compress label dictionary: %v", errs.ErrInternal, err)
	}

	// Postings section: n, then {label_id, series_id} pairs.
	postings := make([]byte, 0, 4+len(b.order)*12)
	postings = engine.AppendUint32(postings, uint32(len(b.order))) //nolint:gosec
	for labelID, id := range b.order {
		postings = engine.AppendUint32(postings, uint32(labelID)) //nolint:gosec
		postings = engine.AppendUint64(postings, id)
	}

	// Samples section: per series {label_id, n_samples, ts_len, ts_blob,
	// val_len, val_blob}.
	var samples []byte
	for labelID, id := range b.order {
		run := b.series[id]

		tsBlob, err := b.encodeTimestamps(run.samples)
		if err != nil {
			return nil, err
		}
		valBlob, err := b.encodeValues(run.samples)
		if err != nil {
			return nil, err
		}

		samples = engine.AppendUint32(samples, uint32(labelID))          //nolint:gosec
		samples = engine.AppendUint32(samples, uint32(len(run.samples))) //nolint:gosec
		samples = engine.AppendUint32(samples, uint32(len(tsBlob)))      //nolint:gosec
		samples = append(samples, tsBlob...)
		samples = engine.AppendUint32(samples, uint32(len(valBlob))) //nolint:gosec
		samples = append(samples, valBlob...)
	}

	body := make([]byte, 0, 3*section.SectionLenSize+len(dictPayload)+len(postings)+len(samples))
	body = engine.AppendUint32(body, uint32(len(dictPayload))) //nolint:gosec
	body = append(body, dictPayload...)
	body = engine.AppendUint32(body, uint32(len(postings))) //nolint:gosec
	body = append(body, postings...)
	body = engine.AppendUint32(body, uint32(len(samples))) //nolint:gosec
	body = append(body, samples...)

	return body, nil
}

func (b *Block) encodeTimestamps(run []Sample) ([]byte, error) {
	var enc encoding.ColumnarEncoder[int64]
	switch b.codecs.Timestamp {
	case format.TypeDelta:
		enc = encoding.NewTimestampDeltaEncoder()
	case format.TypeRaw:
		enc = encoding.NewTimestampRawEncoder(b.header.Flags.EndianEngine())
	default:
		return nil, fmt.Errorf("%w: timestamp encoding %s", errs.ErrInternal, b.codecs.Timestamp)
	}
	defer enc.Finish()

	for _, s := range run {
		enc.Write(s.Timestamp)
	}

	return append([]byte(nil), enc.Bytes()...), nil
}

func (b *Block) encodeValues(run []Sample) ([]byte, error) {
	var enc encoding.ColumnarEncoder[float64]
	switch b.codecs.Value {
	case format.TypeGorilla:
		enc = encoding.NewValueGorillaEncoder()
	case format.TypeRaw:
		enc = encoding.NewValueRawEncoder(b.header.Flags.EndianEngine())
	default:
		return nil, fmt.Errorf("%w: value encoding %s", errs.ErrInternal, b.codecs.Value)
	}
	defer enc.Finish()

	for _, s := range run {
		enc.Write(s.Value)
	}

	return append([]byte(nil), enc.Bytes()...), nil
}

// Deserialize parses a serialized block. It is the exact inverse of
// Serialize: header fields are restored, the body checksum is verified, and
// the resulting block is sealed.
func Deserialize(data []byte) (*Block, error) {
	var header section.Header
	if err := header.Parse(data); err != nil {
		return nil, err
	}

	body := data[section.HeaderSize:]
	if section.Checksum(body) != header.CRC32 {
		return nil, errs.ErrChecksumMismatch
	}

	engine := header.Flags.EndianEngine()

	dictPayload, rest, err := readSection(engine, body)
	if err != nil {
		return nil, err
	}
	postings, rest, err := readSection(engine, rest)
	if err != nil {
		return nil, err
	}
	samples, _, err := readSection(engine, rest)
	if err != nil {
		return nil, err
	}

	b := &Block{
		header: header,
		codecs: Codecs{
			Timestamp:       header.Flags.TimestampEncoding(),
			Value:           header.Flags.ValueEncoding(),
			DictCompression: header.Flags.DictCompression(),
		},
		series: make(map[uint64]*seriesSamples),
		sealed: true,
		body:   append([]byte(nil), body...),
	}

	// Postings: label_id -> series_id mapping and series count.
	if len(postings) < 4 {
		return nil, errs.ErrInvalidSectionLength
	}
	count := int(engine.Uint32(postings[0:4]))
	if len(postings) != 4+count*12 {
		return nil, errs.ErrInvalidSectionLength
	}

	seriesIDs := make([]uint64, count)
	for i := 0; i < count; i++ {
		off := 4 + i*12
		labelID := int(engine.Uint32(postings[off : off+4]))
		if labelID < 0 || labelID >= count {
			return nil, errs.ErrInvalidSectionLength
		}
		seriesIDs[labelID] = engine.Uint64(postings[off+4 : off+12])
	}

	// Label dictionary: canonical strings in label-ID order.
	dictCodec, err := compress.GetCodec(b.codecs.DictCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	dictRaw, err := dictCodec.Decompress(dictPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: label dictionary: %v", errs.ErrInvalidSectionLength, err)
	}

	lsets := make([]labels.Labels, 0, count)
	for s := range encoding.NewStringDictDecoder().All(dictRaw, count) {
		lset, err := labels.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: label dictionary entry %q", errs.ErrInvalidSectionLength, s)
		}
		lsets = append(lsets, lset)
	}
	if len(lsets) != count {
		return nil, errs.ErrInvalidSectionLength
	}

	for labelID, lset := range lsets {
		id := seriesIDs[labelID]
		b.series[id] = &seriesSamples{lset: lset}
		b.order = append(b.order, id)
	}

	if err := b.decodeSamples(engine, samples, lsets); err != nil {
		return nil, err
	}

	return b, nil
}

// decodeSamples parses the samples section and fills the per-series runs.
func (b *Block) decodeSamples(engine endian.EndianEngine, data []byte, lsets []labels.Labels) error {
	off := 0
	for off < len(data) {
		if off+12 > len(data) {
			return errs.ErrInvalidSectionLength
		}

		labelID := int(engine.Uint32(data[off : off+4]))
		n := int(engine.Uint32(data[off+4 : off+8]))
		tsLen := int(engine.Uint32(data[off+8 : off+12]))
		off += 12

		if labelID >= len(lsets) || off+tsLen > len(data) {
			return errs.ErrInvalidSectionLength
		}
		tsBlob := data[off : off+tsLen]
		off += tsLen

		if off+4 > len(data) {
			return errs.ErrInvalidSectionLength
		}
		valLen := int(engine.Uint32(data[off : off+4]))
		off += 4
		if off+valLen > len(data) {
			return errs.ErrInvalidSectionLength
		}
		valBlob := data[off : off+valLen]
		off += valLen

		timestamps, err := b.decodeTimestamps(tsBlob, n)
		if err != nil {
			return err
		}
		values, err := b.decodeValues(valBlob, n)
		if err != nil {
			return err
		}
		if len(timestamps) != n || len(values) != n {
			return errs.ErrInvalidSectionLength
		}

		lset := lsets[labelID]
		run, ok := b.series[(&lset).ID()]
		if !ok {
			// The postings entry disagrees with the dictionary hash.
			return errs.ErrInvalidSectionLength
		}
		run.samples = make([]Sample, n)
		for i := range n {
			run.samples[i] = Sample{Timestamp: timestamps[i], Value: values[i]}
		}
		b.numSamples += n
	}

	return nil
}

func (b *Block) decodeTimestamps(data []byte, count int) ([]int64, error) {
	var dec encoding.ColumnarDecoder[int64]
	switch b.codecs.Timestamp {
	case format.TypeDelta:
		dec = encoding.NewTimestampDeltaDecoder()
	case format.TypeRaw:
		dec = encoding.NewTimestampRawDecoder(b.header.Flags.EndianEngine())
	default:
		return nil, fmt.Errorf("%w: timestamp encoding %s", errs.ErrInternal, b.codecs.Timestamp)
	}

	out := make([]int64, 0, count)
	for ts := range dec.All(data, count) {
		out = append(out, ts)
	}

	return out, nil
}

func (b *Block) decodeValues(data []byte, count int) ([]float64, error) {
	var dec encoding.ColumnarDecoder[float64]
	switch b.codecs.Value {
	case format.TypeGorilla:
		dec = encoding.NewValueGorillaDecoder()
	case format.TypeRaw:
		dec = encoding.NewValueRawDecoder(b.header.Flags.EndianEngine())
	default:
		return nil, fmt.Errorf("%w: value encoding %s", errs.ErrInternal, b.codecs.Value)
	}

	out := make([]float64, 0, count)
	for v := range dec.All(data, count) {
		out = append(out, v)
	}

	return out, nil
}

// readSection splits off one u32-length-prefixed section and returns the
// remainder.
func readSection(engine endian.EndianEngine, data []byte) (payload, rest []byte, err error) {
	if len(data) < section.SectionLenSize {
		return nil, nil, errs.ErrInvalidSectionLength
	}

	n := int(engine.Uint32(data[:section.SectionLenSize]))
	data = data[section.SectionLenSize:]
	if n > len(data) {
		return nil, nil, errs.ErrInvalidSectionLength
	}

	return data[:n], data[n:], nil
}
