// Copyright 2026 Quarrydocs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fetchcache

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/quarrydocs/quarry/core"
)

// EntryMUS serializes Entry in MUS format. FetchedAt is stored as unix
// milliseconds.
var EntryMUS = entrySer{}

type entrySer struct{}

func (entrySer) Marshal(e Entry, bs []byte) (n int) {
	n = ord.String.Marshal(e.Text, bs)
	n += ord.String.Marshal(string(e.Kind), bs[n:])
	n += varint.Int64.Marshal(e.FetchedAt.UnixMilli(), bs[n:])
	return n
}

func (entrySer) Unmarshal(bs []byte) (e Entry, n int, err error) {
	var (
		text, kind string
		millis     int64
		n1         int
	)
	text, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	kind, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	millis, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e = Entry{
		Text:      text,
		Kind:      core.ContentKind(kind),
		FetchedAt: time.UnixMilli(millis).UTC(),
	}
	return
}

func (entrySer) Size(e Entry) (size int) {
	size = ord.String.Size(e.Text)
	size += ord.String.Size(string(e.Kind))
	size += varint.Int64.Size(e.FetchedAt.UnixMilli())
	return size
}

// MarshalEntry serializes an Entry to bytes.
func MarshalEntry(entry *Entry) []byte {
	buf := make([]byte, EntryMUS.Size(*entry))
	EntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalEntry deserializes an Entry from bytes.
func UnmarshalEntry(data []byte) (*Entry, error) {
	entry, _, err := EntryMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
