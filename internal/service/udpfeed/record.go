package udpfeed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"OFISignal/internal/domain/models"
)

// ErrMalformedRecord is returned for lines that are not seq,src_ts,price,size.
var ErrMalformedRecord = errors.New("malformed tick record")

// ParseRecord parses one CSV line "seq,src_ts,price,size". Fields after the
// fourth are ignored. recvTs is stamped onto the tick as its receive time.
func ParseRecord(line string, recvTs float64) (models.Tick, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 4 {
		return models.Tick{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedRecord, len(fields))
	}

	seq, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: seq: %v", ErrMalformedRecord, err)
	}
	srcTs, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: src_ts: %v", ErrMalformedRecord, err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: price: %v", ErrMalformedRecord, err)
	}
	size, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 32)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: size: %v", ErrMalformedRecord, err)
	}

	return models.Tick{
		Sequence:         seq,
		SourceTimestamp:  srcTs,
		ReceiveTimestamp: recvTs,
		Price:            price,
		Size:             uint32(size),
	}, nil
}

// FormatRecord renders a tick the way ParseRecord reads it.
func FormatRecord(t models.Tick) string {
	return fmt.Sprintf("%d,%.9f,%.6f,%d\n", t.Sequence, t.SourceTimestamp, t.Price, t.Size)
}
