package segment

import (
	"io"
	"os"
	"time"

	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/lockfile"
)

// Appended describes one record written by Append, for the caller to build
// its own bookkeeping (cursor advancement, stats).
type Appended struct {
	Seq  int32
	Time int32
}

// Append writes messages to the current segment as a single concatenated
// .dat write followed by a single .index write. The .index lock is
// acquired first and is the primary serialization point; the .dat lock is
// acquired after it. On a torn write (the .index append fails after .dat
// succeeded), the .dat file is truncated back to its pre-write size so the
// index always describes exactly the bytes present in .dat.
func (s *Store) Append(payloads [][]byte) ([]Appended, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	stem, err := s.CurrentPartition(len(payloads))
	if err != nil {
		return nil, err
	}

	idxPath := s.indexPath(stem)
	datPath := s.datPath(stem)

	idxFile, err := s.cache.Get(handlecache.Write, s.topic, handlecache.RoleIndex, idxPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrapIo("opening segment index", err)
	}
	idxLock, err := lockfile.LockFile(idxFile)
	if err != nil {
		return nil, wrapIo("locking segment index", err)
	}
	defer idxLock.Close()

	datFile, err := s.cache.Get(handlecache.Write, s.topic, handlecache.RoleDat, datPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrapIo("opening segment data", err)
	}
	datLock, err := lockfile.LockFile(datFile)
	if err != nil {
		return nil, wrapIo("locking segment data", err)
	}
	defer datLock.Close()

	idxStat, err := idxFile.Stat()
	if err != nil {
		return nil, wrapIo("stat segment index", err)
	}
	datStat, err := datFile.Stat()
	if err != nil {
		return nil, wrapIo("stat segment data", err)
	}

	existingCount := int32(idxStat.Size() / codec.Int32Size)
	startSeq := stem + existingCount

	datPreSize := datStat.Size()
	idxRunningOffset := datPreSize

	now := int32(time.Now().Unix())
	datBuf := make([]byte, 0, len(payloads)*64)
	idxBuf := make([]byte, 0, len(payloads)*codec.Int32Size)
	results := make([]Appended, len(payloads))

	for i, payload := range payloads {
		seq := startSeq + int32(i)
		crc := codec.SignedCRC32(payload)
		record := codec.EncodeRecord(seq, crc, int32(len(payload)), now, payload)
		datBuf = append(datBuf, record...)
		idxRunningOffset += int64(len(record))
		idxBuf = append(idxBuf, codec.PackI32(int32(idxRunningOffset))...)
		results[i] = Appended{Seq: seq, Time: now}
	}

	if _, err := datFile.Seek(0, io.SeekEnd); err != nil {
		return nil, wrapIo("seeking segment data", err)
	}
	if _, err := datFile.Write(datBuf); err != nil {
		return nil, wrapIo("writing segment data", err)
	}

	if _, err := idxFile.Seek(0, io.SeekEnd); err != nil {
		datFile.Truncate(datPreSize)
		return nil, wrapIo("seeking segment index", err)
	}
	if _, err := idxFile.Write(idxBuf); err != nil {
		// Torn write: truncate .dat back to its pre-write size. Orphan bytes
		// past the .index-visible tail are otherwise ignored on read, since
		// records are addressed by .index.
		if terr := datFile.Truncate(datPreSize); terr != nil {
			return nil, wrapIo("truncating segment data after torn write", terr)
		}
		return nil, wrapIo("writing segment index", err)
	}

	return results, nil
}
