package segment

import (
	"os"
	"time"

	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
)

const (
	readRetryAttempts = 500
	readRetryInterval = time.Millisecond
)

// readSegment reads up to limit records from segment stem, starting at
// absolute sequence offset: p = offset - stem, index[p] (or 0 for p==0)
// gives the byte range, and the record header is validated against p+stem
// and the payload CRC. Transient read failures retry up to 500 times at
// 1ms to tolerate a concurrent writer holding the segment's lock.
func (s *Store) readSegment(stem int32, offset int32, limit int32) ([]codec.Record, error) {
	idxPath := s.indexPath(stem)
	datPath := s.datPath(stem)

	var idxFile, datFile *os.File
	var err error
	for attempt := 0; attempt < readRetryAttempts; attempt++ {
		idxFile, err = s.cache.Get(handlecache.Read, s.topic, handlecache.RoleIndex, idxPath, os.O_RDONLY, 0)
		if err == nil {
			datFile, err = s.cache.Get(handlecache.Read, s.topic, handlecache.RoleDat, datPath, os.O_RDONLY, 0)
		}
		if err == nil {
			break
		}
		time.Sleep(readRetryInterval)
	}
	if err != nil {
		return nil, wrapIo("opening segment for read", err)
	}

	idxStat, err := idxFile.Stat()
	if err != nil {
		return nil, wrapIo("stat segment index", err)
	}
	recordCount := int32(idxStat.Size() / codec.Int32Size)

	p := offset - stem
	if p < 0 || p >= recordCount {
		return nil, nil
	}

	n := limit
	if p+n > recordCount {
		n = recordCount - p
	}

	records := make([]codec.Record, 0, n)
	for i := int32(0); i < n; i++ {
		rec, err := s.readOneRecord(idxFile, datFile, stem, p+i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) readOneRecord(idxFile, datFile *os.File, stem, pos int32) (codec.Record, error) {
	var start int64
	var end int64
	var err error

	for attempt := 0; attempt < readRetryAttempts; attempt++ {
		start = int64(0)
		if pos > 0 {
			var s32 int32
			s32, err = codec.ReadI32At(idxFile, int64(pos-1)*codec.Int32Size)
			start = int64(s32)
		}
		if err == nil {
			var e32 int32
			e32, err = codec.ReadI32At(idxFile, int64(pos)*codec.Int32Size)
			end = int64(e32)
		}
		if err == nil {
			break
		}
		time.Sleep(readRetryInterval)
	}
	if err != nil {
		return codec.Record{}, wrapIo("reading segment index entries", err)
	}

	header := make([]byte, codec.RecordHeaderSize)
	if _, err := datFile.ReadAt(header, start); err != nil {
		return codec.Record{}, wrapIo("reading record header", err)
	}
	seq, crc, ln, tm, err := codec.DecodeRecordHeader(header)
	if err != nil {
		return codec.Record{}, wrapFile("decoding record header", err)
	}
	if seq != stem+pos {
		return codec.Record{}, wrapFile("sequence mismatch", nil)
	}

	payload := make([]byte, ln)
	if ln > 0 {
		if _, err := datFile.ReadAt(payload, start+codec.RecordHeaderSize); err != nil {
			return codec.Record{}, wrapIo("reading record payload", err)
		}
	}

	if codec.SignedCRC32(payload) != crc {
		return codec.Record{}, wrapFile("CRC mismatch", nil)
	}

	want := start + codec.RecordHeaderSize + int64(ln)
	if want != end {
		return codec.Record{}, wrapFile("record length mismatch with index", nil)
	}

	return codec.Record{Seq: seq, CRC: crc, Len: ln, Time: tm, Payload: payload}, nil
}

// ReadAt reads a single record at absolute sequence offset, or (nil, nil) if
// none exists yet.
func (s *Store) ReadAt(offset int32) (*codec.Record, error) {
	recs, err := s.ReadRange(offset, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// ReadRange performs a non-destructive range read across segment
// boundaries: binary search locates the starting segment, then a linear
// fan-out walks subsequent segments until limit records are collected or
// the generation is exhausted.
func (s *Store) ReadRange(offset int32, limit int32) ([]codec.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	stem, idx, all, err := s.FindSegment(offset)
	if err != nil {
		if err == ErrNoSegments {
			return nil, nil
		}
		return nil, err
	}

	var out []codec.Record
	cur := offset
	remaining := limit

	for remaining > 0 && idx < len(all) {
		recs, err := s.readSegment(stem, cur, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		remaining -= int32(len(recs))

		idx++
		if idx >= len(all) {
			break
		}
		stem = all[idx]
		cur = stem
	}

	return out, nil
}

// MaxSequence returns one past the highest sequence number present in the
// current generation (i.e. the count of messages ever written), used by
// Topic.MaxOffset.
func (s *Store) MaxSequence() (int32, error) {
	entries, err := s.loadPartitionIndex()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	lastStem := entries[len(entries)-1]
	idxStat, err := os.Stat(s.indexPath(lastStem))
	if err != nil {
		if os.IsNotExist(err) {
			return lastStem, nil
		}
		return 0, wrapIo("stat last segment index", err)
	}
	return lastStem + int32(idxStat.Size()/codec.Int32Size), nil
}
