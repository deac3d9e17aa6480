package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"
)

var avLogOnce sync.Once

// OpusReader demuxes a container byte stream into 20 ms opus packets. Opus
// audio is passed through untouched; anything else is decoded, resampled and
// re-encoded.
type OpusReader struct {
	src       io.Reader
	fc        *astiav.FormatContext
	ioCtx     *astiav.IOContext
	pkt       *astiav.Packet
	streamIdx int
	opened    bool

	// transcode path
	dec     *astiav.CodecContext
	frame   *astiav.Frame
	out     *astiav.Frame
	swr     *astiav.SoftwareResampleContext
	enc     *Encoder
	pcm     []byte
	pending [][]byte
	eof     bool
}

// NewOpusReader probes src and blocks until enough of the stream is available
// to identify the audio track.
func NewOpusReader(src io.Reader) (*OpusReader, error) {
	avLogOnce.Do(func() { astiav.SetLogLevel(astiav.LogLevelError) })

	o := &OpusReader{src: src, streamIdx: -1, pkt: astiav.AllocPacket()}
	if err := o.open(); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

func (o *OpusReader) open() error {
	o.fc = astiav.AllocFormatContext()
	if o.fc == nil {
		return errors.New("allocate format context")
	}
	ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
		return o.src.Read(b)
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("allocate io context: %w", err)
	}
	o.ioCtx = ioCtx
	o.fc.SetPb(ioCtx)
	o.fc.SetFlags(o.fc.Flags().Add(astiav.FormatContextFlagCustomIo))

	if err := o.fc.OpenInput("", nil, nil); err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	o.opened = true
	if err := o.fc.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("find stream info: %w", err)
	}
	for _, s := range o.fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			o.streamIdx = s.Index()
			break
		}
	}
	if o.streamIdx < 0 {
		return errors.New("no audio stream")
	}

	params := o.fc.Streams()[o.streamIdx].CodecParameters()
	if params.CodecID() == astiav.CodecIDOpus {
		return nil
	}
	return o.setupTranscode(params)
}

func (o *OpusReader) setupTranscode(params *astiav.CodecParameters) error {
	d := astiav.FindDecoder(params.CodecID())
	if d == nil {
		return fmt.Errorf("no decoder for %s", params.CodecID())
	}
	o.dec = astiav.AllocCodecContext(d)
	if err := params.ToCodecContext(o.dec); err != nil {
		return fmt.Errorf("copy codec parameters: %w", err)
	}
	if err := o.dec.Open(d, nil); err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	enc, err := NewEncoder()
	if err != nil {
		return err
	}
	o.enc = enc
	o.frame = astiav.AllocFrame()
	o.out = astiav.AllocFrame()
	o.swr = astiav.AllocSoftwareResampleContext()
	return nil
}

// Passthrough reports whether packets are copied without re-encoding.
func (o *OpusReader) Passthrough() bool { return o.dec == nil }

// ReadPacket returns the next opus packet, or io.EOF at the end of the stream.
func (o *OpusReader) ReadPacket() ([]byte, error) {
	if o.Passthrough() {
		return o.readRaw()
	}
	for len(o.pending) == 0 {
		if o.eof {
			return nil, io.EOF
		}
		if err := o.decodeNext(); err != nil {
			return nil, err
		}
	}
	p := o.pending[0]
	o.pending = o.pending[1:]
	return p, nil
}

func (o *OpusReader) readRaw() ([]byte, error) {
	for {
		if err := o.fc.ReadFrame(o.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if o.pkt.StreamIndex() != o.streamIdx {
			o.pkt.Unref()
			continue
		}
		data := append([]byte(nil), o.pkt.Data()...)
		o.pkt.Unref()
		return data, nil
	}
}

func (o *OpusReader) decodeNext() error {
	err := o.fc.ReadFrame(o.pkt)
	if errors.Is(err, astiav.ErrEof) {
		return o.finish()
	}
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	defer o.pkt.Unref()
	if o.pkt.StreamIndex() != o.streamIdx {
		return nil
	}
	if err := o.dec.SendPacket(o.pkt); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return o.receiveFrames()
}

func (o *OpusReader) receiveFrames() error {
	for {
		if err := o.dec.ReceiveFrame(o.frame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		err := o.resample()
		o.frame.Unref()
		if err != nil {
			return err
		}
		if err := o.encodeFull(); err != nil {
			return err
		}
	}
}

func (o *OpusReader) resample() error {
	nb := int(astiav.RescaleQ(int64(o.frame.NbSamples()),
		astiav.NewRational(1, o.frame.SampleRate()),
		astiav.NewRational(1, opusSampleRate)))
	if nb <= 0 {
		return nil
	}
	o.out.Unref()
	o.out.SetChannelLayout(astiav.ChannelLayoutStereo)
	o.out.SetSampleFormat(astiav.SampleFormatS16)
	o.out.SetSampleRate(opusSampleRate)
	o.out.SetNbSamples(nb)
	if err := o.out.AllocBuffer(0); err != nil {
		return fmt.Errorf("allocate resample frame: %w", err)
	}
	if err := o.swr.ConvertFrame(o.frame, o.out); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	b, err := o.out.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("resampled bytes: %w", err)
	}
	o.pcm = append(o.pcm, b...)
	return nil
}

func (o *OpusReader) encodeFull() error {
	fb := o.enc.FrameBytes()
	for len(o.pcm) >= fb {
		if err := o.enc.EncodeFrame(o.pcm[:fb], o.collect); err != nil {
			return err
		}
		o.pcm = o.pcm[fb:]
	}
	return nil
}

func (o *OpusReader) collect(pkt []byte) error {
	o.pending = append(o.pending, append([]byte(nil), pkt...))
	return nil
}

// finish drains the decoder, pads the last partial frame with silence and
// flushes the encoder.
func (o *OpusReader) finish() error {
	o.eof = true
	if err := o.dec.SendPacket(nil); err == nil {
		if err := o.receiveFrames(); err != nil {
			return err
		}
	}
	if rem := len(o.pcm); rem > 0 {
		o.pcm = append(o.pcm, make([]byte, o.enc.FrameBytes()-rem)...)
		if err := o.encodeFull(); err != nil {
			return err
		}
	}
	return o.enc.Flush(o.collect)
}

func (o *OpusReader) Close() {
	if o.enc != nil {
		o.enc.Close()
	}
	if o.swr != nil {
		o.swr.Free()
	}
	if o.out != nil {
		o.out.Free()
	}
	if o.frame != nil {
		o.frame.Free()
	}
	if o.dec != nil {
		o.dec.Free()
	}
	if o.pkt != nil {
		o.pkt.Free()
	}
	if o.fc != nil {
		if o.opened {
			o.fc.CloseInput()
		}
		o.fc.Free()
	}
	if o.ioCtx != nil {
		o.ioCtx.Free()
	}
}
