package bootstrap

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"bootfit/domain/timeseries"
	"bootfit/internal/compress"
	apperrors "bootfit/internal/errors"

	"github.com/cespare/xxhash/v2"
)

// Blob layout: magic | compression type (1 byte) | xxhash64 of the
// compressed payload (8 bytes, big endian) | compressed JSON payload.
var blobMagic = []byte("BFR1")

const blobHeaderSize = 4 + 1 + 8

// resultPayload holds the raw state of a Result. Summaries are derived and
// recomputed on decode.
type resultPayload struct {
	RunID               string                     `json:"run_id"`
	NumIteration        int                        `json:"num_iteration"`
	Parameters          []string                   `json:"parameters"`
	ParameterDct        map[string][]float64       `json:"parameter_dct"`
	Percentiles         []float64                  `json:"percentiles"`
	Fitted              *timeseries.StatisticState `json:"fitted,omitempty"`
	BootstrapErrorCount int                        `json:"bootstrap_error_count"`
	RejectedCount       int                        `json:"rejected_count"`
	FailedWorkers       int                        `json:"failed_workers"`
	Partial             bool                       `json:"partial"`
}

// Serialize encodes r into an opaque blob compressed with ct.
func Serialize(r *Result, ct compress.Type) ([]byte, error) {
	if r == nil {
		return nil, apperrors.SerializationFailure("cannot serialize nil result", nil)
	}
	codec, err := compress.GetCodec(ct)
	if err != nil {
		return nil, apperrors.SerializationFailure("unsupported compression", err)
	}
	payload := resultPayload{
		RunID:               r.RunID,
		NumIteration:        r.NumIteration,
		Parameters:          r.Parameters,
		ParameterDct:        r.ParameterDct,
		Percentiles:         r.Percentiles,
		BootstrapErrorCount: r.BootstrapErrorCount,
		RejectedCount:       r.RejectedCount,
		FailedWorkers:       r.FailedWorkers,
		Partial:             r.Partial,
	}
	if r.FittedStatistic != nil {
		st := r.FittedStatistic.State()
		payload.Fitted = &st
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.SerializationFailure("failed to encode result", err)
	}
	body, err := codec.Compress(raw)
	if err != nil {
		return nil, apperrors.SerializationFailure("failed to compress result", err)
	}

	var buf bytes.Buffer
	buf.Grow(blobHeaderSize + len(body))
	buf.Write(blobMagic)
	buf.WriteByte(byte(ct))
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(body))
	buf.Write(sum[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// Deserialize decodes a blob produced by Serialize.
func Deserialize(blob []byte) (*Result, error) {
	if len(blob) < blobHeaderSize || !bytes.Equal(blob[:4], blobMagic) {
		return nil, apperrors.SerializationFailure("not a bootstrap result blob", nil)
	}
	codec, err := compress.GetCodec(compress.Type(blob[4]))
	if err != nil {
		return nil, apperrors.SerializationFailure("unsupported compression", err)
	}
	body := blob[blobHeaderSize:]
	if want, got := binary.BigEndian.Uint64(blob[5:13]), xxhash.Sum64(body); want != got {
		return nil, apperrors.SerializationFailure(fmt.Sprintf("checksum mismatch: %016x != %016x", got, want), nil)
	}
	raw, err := codec.Decompress(body)
	if err != nil {
		return nil, apperrors.SerializationFailure("failed to decompress result", err)
	}
	var payload resultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperrors.SerializationFailure("failed to decode result", err)
	}

	var fitted *timeseries.Statistic
	if payload.Fitted != nil {
		fitted, err = timeseries.RestoreStatistic(*payload.Fitted)
		if err != nil {
			return nil, apperrors.SerializationFailure("invalid fitted statistic", err)
		}
	}
	r, err := NewResult(payload.Parameters, payload.ParameterDct, fitted, payload.Percentiles)
	if err != nil {
		return nil, apperrors.SerializationFailure("inconsistent result", err)
	}
	if r.NumIteration != payload.NumIteration {
		return nil, apperrors.SerializationFailure(
			fmt.Sprintf("result claims %d iterations but holds %d", payload.NumIteration, r.NumIteration), nil)
	}
	r.RunID = payload.RunID
	r.BootstrapErrorCount = payload.BootstrapErrorCount
	r.RejectedCount = payload.RejectedCount
	r.FailedWorkers = payload.FailedWorkers
	r.Partial = payload.Partial
	return r, nil
}
