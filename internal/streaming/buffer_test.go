package streaming

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

// fragment builds a minimal moof-prefixed segment with the given
// payload so buffer boundary tracking has something real to find.
func fragment(payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(8+len(payload)))
	copy(buf[4:], "moof")
	copy(buf[8:], payload)
	return buf
}

func TestReaderSeesWritesInOrder(t *testing.T) {
	b := NewBuffer(1 << 20)
	r := b.NewReader()

	if _, err := b.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := b.Write([]byte("def")); err != nil {
		t.Fatalf("write: %v", err)
	}
	b.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "abcdef" {
		t.Errorf("read %q, want abcdef", got)
	}
}

func TestWriteAfterClose(t *testing.T) {
	b := NewBuffer(1 << 20)
	b.Close()
	if _, err := b.Write([]byte("x")); !errors.Is(err, ErrBufferClosed) {
		t.Errorf("err = %v, want ErrBufferClosed", err)
	}
}

func TestLateJoinerGetsInitAndFragmentBoundary(t *testing.T) {
	b := NewBuffer(1 << 20)
	init := []byte("ftypmoovdata")
	b.SetInit(init)

	if _, err := b.Write(init); err != nil {
		t.Fatal(err)
	}
	frag1 := fragment([]byte("first"))
	frag2 := fragment([]byte("second"))
	if _, err := b.Write(frag1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write(frag2); err != nil {
		t.Fatal(err)
	}

	r := b.NewReader()
	b.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// The late joiner starts with a replayed init segment followed by
	// data from the newest fragment boundary, skipping frag1.
	want := append(append([]byte(nil), init...), frag2...)
	if !bytes.Equal(got, want) {
		t.Errorf("late joiner read %q, want %q", got, want)
	}
}

func TestEarlyJoinerGetsNoInitReplay(t *testing.T) {
	b := NewBuffer(1 << 20)
	r := b.NewReader() // joins at offset 0, before any data

	b.SetInit([]byte("ftyp"))
	if _, err := b.Write([]byte("ftyp-live")); err != nil {
		t.Fatal(err)
	}
	b.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Offset-zero readers see the stream bytes as written; replaying
	// the init segment would duplicate it.
	if string(got) != "ftyp-live" {
		t.Errorf("read %q, want ftyp-live", got)
	}
}

func TestTrimResyncsLaggingReaderToFragmentBoundary(t *testing.T) {
	b := NewBuffer(100)
	r := b.NewReader()

	filler := bytes.Repeat([]byte("a"), 60)
	fragA := fragment(bytes.Repeat([]byte("b"), 32))
	fragB := fragment(bytes.Repeat([]byte("c"), 32))
	for _, chunk := range [][]byte{filler, fragA, fragB} {
		if _, err := b.Write(chunk); err != nil {
			t.Fatal(err)
		}
	}
	b.Close()

	// 140 bytes total exceeded the 100-byte cap, trimming the window
	// out from under the reader. It must resume at the newest fragment
	// boundary, never at a mid-atom byte.
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, fragB) {
		t.Errorf("read %d bytes starting %q, want the last fragment", len(got), got[:min(len(got), 8)])
	}
	if end := b.End(); end != 140 {
		t.Errorf("End() = %d, want 140", end)
	}
}

func TestTrimDropsReaderWhenNoFragmentRetained(t *testing.T) {
	b := NewBuffer(100)
	r := b.NewReader()

	if _, err := b.Write(bytes.Repeat([]byte("a"), 60)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write(bytes.Repeat([]byte("b"), 80)); err != nil {
		t.Fatal(err)
	}

	// No fragment boundary survives in the retained window, so there
	// is no decodable point to hand this reader.
	if _, err := r.Read(make([]byte, 16)); !errors.Is(err, ErrReaderLagged) {
		t.Errorf("Read error = %v, want ErrReaderLagged", err)
	}
}

func TestReaderBlocksUntilData(t *testing.T) {
	b := NewBuffer(1 << 20)
	r := b.NewReader()

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := r.Read(buf)
		if err != nil {
			done <- nil
			return
		}
		done <- buf[:n]
	}()

	select {
	case <-done:
		t.Fatal("read returned before any data was written")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := b.Write([]byte("live")); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-done:
		if string(got) != "live" {
			t.Errorf("read %q, want live", got)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not woken by write")
	}
}

func TestCloseWakesBlockedReader(t *testing.T) {
	b := NewBuffer(1 << 20)
	r := b.NewReader()

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 16))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("read returned before close")
	case <-time.After(20 * time.Millisecond):
	}

	b.Close()
	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("read after close = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked reader not woken by close")
	}
}

func TestTwoReadersIndependentCursors(t *testing.T) {
	b := NewBuffer(1 << 20)
	r1 := b.NewReader()

	if _, err := b.Write([]byte("shared")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 3)
	if _, err := io.ReadFull(r1, buf); err != nil {
		t.Fatal(err)
	}

	r2 := b.NewReader() // no fragments seen, so r2 joins at the live end
	if _, err := b.Write([]byte("-more")); err != nil {
		t.Fatal(err)
	}
	b.Close()

	rest1, _ := io.ReadAll(r1)
	rest2, _ := io.ReadAll(r2)

	if got := string(buf) + string(rest1); got != "shared-more" {
		t.Errorf("reader 1 saw %q, want shared-more", got)
	}
	if string(rest2) != "-more" {
		t.Errorf("reader 2 saw %q, want -more", rest2)
	}
}

func TestInitReady(t *testing.T) {
	b := NewBuffer(1 << 20)
	if b.InitReady() {
		t.Error("InitReady before SetInit")
	}
	b.SetInit([]byte("ftyp"))
	if !b.InitReady() {
		t.Error("InitReady false after SetInit")
	}
}

func TestFragmentMarkerAcrossChunks(t *testing.T) {
	b := NewBuffer(1 << 20)
	b.SetInit([]byte("init"))

	frag := fragment([]byte("payload"))
	if _, err := b.Write([]byte("prefix")); err != nil {
		t.Fatal(err)
	}
	// Split mid-marker so the boundary straddles two writes.
	if _, err := b.Write(frag[:6]); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write(frag[6:]); err != nil {
		t.Fatal(err)
	}

	r := b.NewReader()
	b.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("init"), frag...)
	if !bytes.Equal(got, want) {
		t.Errorf("reader got %q, want init plus the fragment", got)
	}
}
