// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdhost

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/swd-tools/swdhost/flash"
	"github.com/swd-tools/swdhost/swdcore"
	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdio"
	"github.com/swd-tools/swdhost/swdmem"
	"github.com/swd-tools/swdhost/swdproto"
	"github.com/swd-tools/swdhost/target"
)

// busy is the process-wide single-writer flag of spec.md §5: at most one
// Session may be open at a time. Open/Release are its only mutators.
var busy atomic.Bool

// Binding is the Go realization of the device-tree binding of spec.md §6:
// the two GPIO line names the Line Driver resolves through gpioreg, and the
// optional target core name the Target Registry looks up. An empty Core
// defaults to "stm32f10xx", the same default the original board file used
// when the property was absent.
type Binding struct {
	SWCLK string
	SWDIO string
	Core  string
	Freq  physic.Frequency
}

// Session is the Session/IOCTL Surface of SPEC_FULL.md §4.9: it owns the
// pin handle and target descriptor for the single currently-open device,
// exposes Ioctl for the verb table of spec.md §6, and implements
// io.ReadSeeker over the target's memory so it can stand in for the
// character-device read/llseek path.
type Session struct {
	pin  swdio.PinIO
	tr   *swdproto.Transactor
	mem  *swdmem.Transport
	core *swdcore.Controller
	fl   flash.Flasher
	orch *flash.Orchestrator
	desc target.Descriptor

	seek   uint32
	halted bool
}

// Open acquires the busy flag, resolves b's pins, selects b.Core's
// Descriptor from the Target Registry, brings the target up (init + halt)
// and seeks to the flash region's base — mirroring the original driver's
// swd_open.
func Open(b Binding) (*Session, error) {
	if !busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("swdhost: open: %w", swderr.Busy)
	}
	s, err := open(b)
	if err != nil {
		busy.Store(false)
		return nil, err
	}
	return s, nil
}

func open(b Binding) (*Session, error) {
	pin, err := swdio.NewGPIODriver(b.SWCLK, b.SWDIO, b.Freq)
	if err != nil {
		return nil, fmt.Errorf("swdhost: open: %w", err)
	}
	return openWithPin(pin, b.Core)
}

// openWithPin builds a Session over an already-constructed pin handle,
// bypassing gpioreg resolution. The native Open path uses it after
// resolving real GPIO lines; tests use it directly with a swdtest-backed
// mock pin.
func openWithPin(pin swdio.PinIO, core string) (*Session, error) {
	if core == "" {
		core = "stm32f10xx"
	}
	desc, ok := target.Lookup(core)
	if !ok {
		return nil, fmt.Errorf("swdhost: open: unknown core %q: %w", core, swderr.Invalid)
	}

	tr := &swdproto.Transactor{Pin: pin, Retry: desc.PollLimitWait}
	mem, err := swdmem.NewTransport(tr)
	if err != nil {
		return nil, fmt.Errorf("swdhost: open: %w", err)
	}
	core2 := swdcore.New(tr, mem)
	fl := flash.New(mem, desc)
	orch := flash.NewOrchestrator(mem, fl, desc)

	s := &Session{
		pin:  pin,
		tr:   tr,
		mem:  mem,
		core: core2,
		fl:   fl,
		orch: orch,
		desc: desc,
		seek: desc.Flash.Start,
	}
	if err := s.hltcore(); err != nil {
		return nil, err
	}
	return s, nil
}

// Release issues a line reset and releases the busy flag, mirroring
// swd_release.
func (s *Session) Release() error {
	defer busy.Store(false)
	return s.Halt()
}

// String implements conn.Resource.
func (s *Session) String() string {
	return fmt.Sprintf("swdhost.Session{%s}", s.desc.Name)
}

// Halt implements conn.Resource: it issues a line reset, returning the
// target to the idle state, without releasing the busy flag the way
// Release does, the same Halt/Close split periph-host/sysfs's Pin makes.
func (s *Session) Halt() error {
	swdproto.LineReset(s.pin)
	return nil
}

var _ conn.Resource = (*Session)(nil)

// Read implements io.Reader: a memory-transport read of len(p) bytes
// (rounded down to a multiple of 4) starting at the current seek position,
// chopped to swdmem.BankSize banks, advancing seek by the number of bytes
// actually transferred.
func (s *Session) Read(p []byte) (int, error) {
	n := len(p) - len(p)%4
	if n == 0 {
		return 0, nil
	}
	out, err := s.readChopped(s.seek, n)
	copy(p, out)
	s.seek += uint32(len(out))
	return len(out), err
}

func (s *Session) readChopped(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		remain := n - len(out)
		bank := int(swdmem.BankSize - (addr+uint32(len(out)))%swdmem.BankSize)
		if bank > remain {
			bank = remain
		}
		words, err := s.mem.ReadBlock(addr+uint32(len(out)), bank/4)
		if err != nil {
			return out, fmt.Errorf("swdhost: read: %w", err)
		}
		for _, w := range words {
			out = append(out, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
		}
	}
	return out, nil
}

// Seek implements io.Seeker, SEEK_SET and SEEK_CUR only, matching the
// llseek verb's restriction in spec.md §6.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.seek = uint32(offset)
	case io.SeekCurrent:
		s.seek = uint32(int64(s.seek) + offset)
	default:
		return 0, fmt.Errorf("swdhost: seek: whence %d: %w", whence, swderr.Invalid)
	}
	return int64(s.seek), nil
}

var _ io.ReadSeeker = (*Session)(nil)

// Verb is one of the nine ioctl verbs of spec.md §6, dispatched by value
// through Ioctl rather than by a real ioctl(2) number.
type Verb int

const (
	RSTLN Verb = iota
	HLTCORE
	UNHLTCORE
	TSTALIVE
	DWNLDSRAM
	DWNLDFLSH
	ERSFLSH
	ERSFLSHPG
	MEMINFOGET
)

// DownloadArg is the payload shared by DWNLDSRAM and DWNLDFLSH: a buffer to
// write, the target-bus offset to write it at, and (for ERSFLSHPG) a length
// to erase instead.
type DownloadArg struct {
	Data   []byte
	Offset uint32
	Len    uint32
}

// Ioctl dispatches one verb against the open session, mirroring the
// character device's ioctl handler. arg's type depends on verb: nil for
// RSTLN/HLTCORE/UNHLTCORE/ERSFLSH, *uint32 for TSTALIVE, *DownloadArg for
// DWNLDSRAM/DWNLDFLSH/ERSFLSHPG, and *bytes.Buffer for MEMINFOGET.
func (s *Session) Ioctl(verb Verb, arg any) error {
	switch verb {
	case RSTLN:
		swdproto.SwitchToSWD(s.pin)
		return nil
	case HLTCORE:
		return s.hltcore()
	case UNHLTCORE:
		if err := s.core.Unhalt(); err != nil {
			return fmt.Errorf("swdhost: unhltcore: %w", err)
		}
		swdproto.LineReset(s.pin)
		s.halted = false
		return nil
	case TSTALIVE:
		out, ok := arg.(*uint32)
		if !ok {
			return fmt.Errorf("swdhost: tstalive: %w", swderr.Invalid)
		}
		id, err := s.core.Liveness()
		if err != nil {
			return fmt.Errorf("swdhost: tstalive: %w", err)
		}
		*out = id
		return nil
	case DWNLDSRAM:
		da, ok := arg.(*DownloadArg)
		if !ok {
			return fmt.Errorf("swdhost: dwnldsram: %w", swderr.Invalid)
		}
		return s.downloadSRAM(da)
	case DWNLDFLSH:
		da, ok := arg.(*DownloadArg)
		if !ok {
			return fmt.Errorf("swdhost: dwnldflsh: %w", swderr.Invalid)
		}
		if err := s.orch.Write(s.desc.Flash.Start+da.Offset, da.Data); err != nil {
			return fmt.Errorf("swdhost: dwnldflsh: %w", err)
		}
		return nil
	case ERSFLSH:
		if err := s.fl.Unlock(); err != nil {
			return fmt.Errorf("swdhost: ersflsh: %w", err)
		}
		defer s.fl.Lock()
		if err := s.fl.EraseAll(); err != nil {
			return fmt.Errorf("swdhost: ersflsh: %w", err)
		}
		return nil
	case ERSFLSHPG:
		da, ok := arg.(*DownloadArg)
		if !ok {
			return fmt.Errorf("swdhost: ersflsh_pg: %w", swderr.Invalid)
		}
		return s.eraseRange(da.Offset, da.Len)
	case MEMINFOGET:
		out, ok := arg.(*bytes.Buffer)
		if !ok {
			return fmt.Errorf("swdhost: meminfo_get: %w", swderr.Invalid)
		}
		out.Write(s.desc.MarshalMemInfo())
		return nil
	default:
		return fmt.Errorf("swdhost: ioctl: unknown verb %d: %w", verb, swderr.Invalid)
	}
}

func (s *Session) hltcore() error {
	if err := s.core.Init(); err != nil {
		return fmt.Errorf("swdhost: hltcore: %w", err)
	}
	if err := s.core.Halt(); err != nil {
		return fmt.Errorf("swdhost: hltcore: %w", err)
	}
	s.halted = true
	s.seek = s.desc.Flash.Start
	return nil
}

// downloadSRAM writes da.Data to SRAM at da.Offset and verifies it by
// reading the range back, matching spec.md §6's "memory-transport write to
// SRAM with verify".
func (s *Session) downloadSRAM(da *DownloadArg) error {
	addr := s.desc.SRAM.Start + da.Offset
	if len(da.Data)%4 != 0 {
		return fmt.Errorf("swdhost: dwnldsram: len=%d: %w", len(da.Data), swderr.Invalid)
	}
	words := make([]uint32, len(da.Data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(da.Data[i*4:])
	}
	for off := 0; off < len(words); {
		chunk := (swdmem.BankSize - int(addr+uint32(off*4))%swdmem.BankSize) / 4
		if chunk > len(words)-off {
			chunk = len(words) - off
		}
		if err := s.mem.WriteBlock(addr+uint32(off*4), words[off:off+chunk]); err != nil {
			return fmt.Errorf("swdhost: dwnldsram: %w", err)
		}
		off += chunk
	}
	back, err := s.readChopped(addr, len(da.Data))
	if err != nil {
		return fmt.Errorf("swdhost: dwnldsram: verify: %w", err)
	}
	if !bytes.Equal(back, da.Data) {
		return fmt.Errorf("swdhost: dwnldsram: %w", swderr.VerifyFailed)
	}
	return nil
}

func (s *Session) eraseRange(offset, length uint32) error {
	if err := s.fl.Unlock(); err != nil {
		return fmt.Errorf("swdhost: erase range: %w", err)
	}
	defer s.fl.Lock()
	addr := s.desc.Flash.Start + offset
	end := addr + length
	for cur := addr; cur < end; {
		if err := s.fl.EraseUnit(cur); err != nil {
			return fmt.Errorf("swdhost: erase range: %w", err)
		}
		start, size := unitBounds(s.desc, cur)
		cur = start + size
	}
	return nil
}

// unitBounds mirrors flash.Orchestrator's private helper of the same shape:
// it has to be reproduced here because eraseRange walks units without an
// Orchestrator in hand.
func unitBounds(desc target.Descriptor, addr uint32) (start, size uint32) {
	if desc.Uniform() {
		off := addr - desc.Flash.Start
		unit := desc.FlashLayout.ProgramUnit
		return addr - off%unit, unit
	}
	off := addr - desc.Flash.Start
	for _, seg := range desc.FlashLayout.Segments {
		if off >= seg.Start && off < seg.Start+seg.Size {
			return desc.Flash.Start + seg.Start, seg.Size
		}
	}
	return addr, desc.FlashLayout.ProgramUnit
}
