package state

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// fingerprintKey separates result fingerprints from other uses of the hash.
var fingerprintKey = []byte("thincf.cl.state")

const fingerprintSize = 20

type fingerprinter struct {
	h hash.Hash
}

func newFingerprinter() *fingerprinter {
	h, err := blake2b.New(fingerprintSize, fingerprintKey)
	if err != nil {
		panic(err)
	}
	return &fingerprinter{h: h}
}

// add writes each field prefixed with its 4-byte big-endian length.
func (f *fingerprinter) add(fields ...string) {
	var l [4]byte
	for _, s := range fields {
		binary.BigEndian.PutUint32(l[:], uint32(len(s)))
		f.h.Write(l[:])
		f.h.Write([]byte(s))
	}
}

func (f *fingerprinter) addEntry(e Entry) {
	a := e.Attrs()
	f.add(KindOf(e), a.Path, a.User, a.Group, strconv.FormatUint(uint64(a.Mode), 8))

	switch e := e.(type) {
	case *FileEntry:
		f.add(e.Content)
	case *SymlinkEntry:
		f.add(e.Target)
	case *DirEntry:
	}

	f.add(strconv.Itoa(len(a.Invocations)))
	for _, inv := range a.Invocations {
		f.add(inv.Name, strconv.Itoa(len(inv.Args)))
		f.add(inv.Args...)
	}
}

func (f *fingerprinter) addAction(a *Action) {
	f.add(a.Name, a.Body)
}

func (f *fingerprinter) sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}
