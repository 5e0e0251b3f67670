package common

// Message is one record handed back by Pop/GetQueue/GetMessage: a decoded
// segment record plus the generation label it was read from.
type Message struct {
	Offset  int64 // sequence number within the generation it was read from
	Hash    int32 // stored CRC32 (signed), included so callers can re-verify
	Len     int32
	Time    int32
	Payload []byte
	Label   int32 // generation the message was read from
}

// Stats reports engine counters. It supplements Length/MaxOffset/CurrentOffset
// rather than replacing them.
type Stats struct {
	PushCount     int64
	PopCount      int64
	PromoteCount  int64
	RolloverCount int64
	SegmentCount  int
}
