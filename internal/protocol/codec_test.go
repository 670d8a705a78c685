package protocol

import (
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(LoginPacket{Username: "alice"})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	want := `/login 20 {"username":"alice"}`
	if frame != want {
		t.Errorf("expected %q, got %q", want, frame)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	frame, err := EncodeFrame(SendMessagePacket{ChannelID: 7, Message: "hi there"})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var d Decoder
	frames, err := d.Feed([]byte(frame))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Prefix != PrefixSendMessage {
		t.Errorf("expected prefix %q, got %q", PrefixSendMessage, frames[0].Prefix)
	}

	p, err := Decode(frames[0].Prefix, frames[0].Body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	msg, ok := p.(*SendMessagePacket)
	if !ok {
		t.Fatalf("expected *SendMessagePacket, got %T", p)
	}
	if msg.ChannelID != 7 || msg.Message != "hi there" {
		t.Errorf("unexpected packet contents: %+v", msg)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	frame, err := EncodeFrame(LoginPacket{Username: "bob"})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var d Decoder
	var got []Frame
	for i := 0; i < len(frame); i++ {
		frames, err := d.Feed([]byte{frame[i]})
		if err != nil {
			t.Fatalf("Feed failed at byte %d: %v", i, err)
		}
		got = append(got, frames...)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if got[0].Prefix != PrefixLogin {
		t.Errorf("expected prefix %q, got %q", PrefixLogin, got[0].Prefix)
	}
	if got[0].Body != `{"username":"bob"}` {
		t.Errorf("unexpected body %q", got[0].Body)
	}
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	f1, _ := EncodeFrame(LoginPacket{Username: "alice"})
	f2, _ := EncodeFrame(SendMessagePacket{ChannelID: 0, Message: "hello"})
	f3, _ := EncodeFrame(ParameterlessPacket{Type: GetChannels})

	var d Decoder
	frames, err := d.Feed([]byte(f1 + f2 + f3))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	wantPrefixes := []string{PrefixLogin, PrefixSendMessage, "/getchannels"}
	for i, want := range wantPrefixes {
		if frames[i].Prefix != want {
			t.Errorf("frame %d: expected prefix %q, got %q", i, want, frames[i].Prefix)
		}
	}
}

func TestDecoder_BodyContainingSpacesAndSlashes(t *testing.T) {
	// Body bytes must be counted, not scanned, so frame-like content inside
	// a body stays part of that body.
	frame, _ := EncodeFrame(SendMessagePacket{ChannelID: 1, Message: "/login 5 fake frame"})

	var d Decoder
	frames, err := d.Feed([]byte(frame))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	p, err := Decode(frames[0].Prefix, frames[0].Body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.(*SendMessagePacket).Message != "/login 5 fake frame" {
		t.Errorf("body was not preserved: %q", frames[0].Body)
	}
}

func TestDecoder_MalformedResync(t *testing.T) {
	good, _ := EncodeFrame(LoginPacket{Username: "carol"})

	t.Run("garbage before frame", func(t *testing.T) {
		var d Decoder
		frames, err := d.Feed([]byte("garbage bytes " + good))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got %v", err)
		}
		if len(frames) != 1 || frames[0].Prefix != PrefixLogin {
			t.Fatalf("expected the good frame to survive, got %v", frames)
		}
	})

	t.Run("bad length field", func(t *testing.T) {
		var d Decoder
		frames, err := d.Feed([]byte("/login notanumber {}" + good))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got %v", err)
		}
		if len(frames) != 1 || frames[0].Prefix != PrefixLogin {
			t.Fatalf("expected the good frame to survive, got %v", frames)
		}
	})

	t.Run("garbage only", func(t *testing.T) {
		var d Decoder
		frames, err := d.Feed([]byte("no frame start here"))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got %v", err)
		}
		if len(frames) != 0 {
			t.Errorf("expected no frames, got %v", frames)
		}
		if d.buffered() != 0 {
			t.Errorf("expected empty buffer after resync, %d bytes left", d.buffered())
		}
	})
}

func TestDecode_UnknownPrefix(t *testing.T) {
	if _, err := Decode("/nosuchthing", "{}"); err == nil {
		t.Error("expected an error for an unknown prefix")
	}
}

func TestParseFrame(t *testing.T) {
	frame, _ := EncodeFrame(LoginPacket{Username: "dave"})
	f, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if f.Prefix != PrefixLogin || f.Body != `{"username":"dave"}` {
		t.Errorf("unexpected frame: %+v", f)
	}

	if _, err := ParseFrame(frame + "trailing"); err == nil {
		t.Error("expected an error for trailing bytes")
	}
}
