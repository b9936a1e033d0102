package cpu

// exec0 handles the 0nnn family: CLS, RET, syscall dispatch, and the
// classic "ignore SYS addr" no-op fallback.
func (e *Engine) exec0(m Machine, instr uint16, dispatch Dispatch) Outcome {
	regs := m.Regs()

	switch instr {
	case 0x00E0:
		m.Display().Clear()
		regs.PC += 2
		return Outcome{Kind: Completed}

	case 0x00EE:
		hi, err1 := m.ReadU8(uint32(regs.SP))
		lo, err2 := m.ReadU8(uint32(regs.SP) + 1)
		if err1 != nil || err2 != nil {
			e.fatal(m, "RET: stack read at %#04x out of range", regs.SP)
			return Outcome{Kind: Completed}
		}
		regs.PC = mem16be(hi, lo)
		regs.SP -= 2
		return Outcome{Kind: Completed}

	default:
		n := nnn(instr)
		if n >= SyscallRangeLow && n < SyscallRangeHigh {
			outcome := dispatch(n, m)
			// PC advances even on block, so a resumed process
			// continues after the syscall rather than reissuing it.
			regs.PC += 2
			return outcome
		}
		// unrecognized 0nnn outside the syscall range: classic
		// "SYS addr" no-op, preserved for ROM compatibility.
		regs.PC += 2
		return Outcome{Kind: Completed}
	}
}

// exec1 -- 1nnn JP.
func (e *Engine) exec1(m Machine, instr uint16) {
	m.Regs().PC = nnn(instr)
}

// exec2 -- 2nnn CALL. The incremented SP wraps modulo vm_size, so the
// first CALL from the reset SP (= vm_size) pushes at virtual 0x002.
func (e *Engine) exec2(m Machine, instr uint16) {
	regs := m.Regs()
	sp := uint16((uint32(regs.SP) + 2) % m.VMSize())
	ret := regs.PC + 2
	err1 := m.WriteU8(uint32(sp), uint8(ret>>8))
	err2 := m.WriteU8(uint32(sp)+1, uint8(ret))
	if err1 != nil || err2 != nil {
		e.fatal(m, "CALL: stack write at %#04x out of range", sp)
		return
	}
	regs.SP = sp
	regs.PC = nnn(instr)
}

// exec3 -- 3xkk SE.
func (e *Engine) exec3(m Machine, instr uint16) {
	regs := m.Regs()
	if regs.V[opx(instr)] == opkk(instr) {
		regs.PC += 4
	} else {
		regs.PC += 2
	}
}

// exec4 -- 4xkk SNE.
func (e *Engine) exec4(m Machine, instr uint16) {
	regs := m.Regs()
	if regs.V[opx(instr)] != opkk(instr) {
		regs.PC += 4
	} else {
		regs.PC += 2
	}
}

// exec5 -- 5xy0 SE reg.
func (e *Engine) exec5(m Machine, instr uint16) {
	regs := m.Regs()
	if regs.V[opx(instr)] == regs.V[opy(instr)] {
		regs.PC += 4
	} else {
		regs.PC += 2
	}
}

// exec6 -- 6xkk LD imm.
func (e *Engine) exec6(m Machine, instr uint16) {
	regs := m.Regs()
	regs.V[opx(instr)] = opkk(instr)
	regs.PC += 2
}

// exec7 -- 7xkk ADD imm, no flag.
func (e *Engine) exec7(m Machine, instr uint16) {
	regs := m.Regs()
	x := opx(instr)
	regs.V[x] = regs.V[x] + opkk(instr)
	regs.PC += 2
}

// exec8 -- the 8xyZ ALU family.
func (e *Engine) exec8(m Machine, instr uint16) {
	regs := m.Regs()
	x, y := opx(instr), opy(instr)

	switch opz(instr) {
	case 0x0:
		regs.V[x] = regs.V[y]
	case 0x1:
		regs.V[x] |= regs.V[y]
	case 0x2:
		regs.V[x] &= regs.V[y]
	case 0x3:
		regs.V[x] ^= regs.V[y]
	case 0x4:
		sum := uint16(regs.V[x]) + uint16(regs.V[y])
		regs.V[x] = uint8(sum)
		if sum > 0xFF {
			regs.SetVF(1)
		} else {
			regs.SetVF(0)
		}
	case 0x5:
		vx, vy := regs.V[x], regs.V[y]
		result := vx - vy
		if vx >= vy {
			regs.SetVF(1)
		} else {
			regs.SetVF(0)
		}
		regs.V[x] = result
	case 0x6:
		vx := regs.V[x]
		regs.V[x] = vx >> 1
		regs.SetVF(vx & 1)
	case 0x7:
		vx, vy := regs.V[x], regs.V[y]
		result := vy - vx
		if vy >= vx {
			regs.SetVF(1)
		} else {
			regs.SetVF(0)
		}
		regs.V[x] = result
	case 0xE:
		vx := regs.V[x]
		regs.V[x] = vx << 1
		regs.SetVF((vx >> 7) & 1)
	default:
		e.fatal(m, "8xy%X: unknown ALU opcode %#04x", opz(instr), instr)
		return
	}
	regs.PC += 2
}

// exec9 -- 9xy0 SNE reg.
func (e *Engine) exec9(m Machine, instr uint16) {
	regs := m.Regs()
	if regs.V[opx(instr)] != regs.V[opy(instr)] {
		regs.PC += 4
	} else {
		regs.PC += 2
	}
}

// execA -- Annn LD I.
func (e *Engine) execA(m Machine, instr uint16) {
	regs := m.Regs()
	regs.I = nnn(instr)
	regs.PC += 2
}

// execB -- Bnnn JP V0, classic (non-quirk) behavior.
func (e *Engine) execB(m Machine, instr uint16) {
	regs := m.Regs()
	regs.PC = nnn(instr) + uint16(regs.V[0])
}

// execC -- Cxkk RND.
func (e *Engine) execC(m Machine, instr uint16) {
	regs := m.Regs()
	regs.V[opx(instr)] = randByte() & opkk(instr)
	regs.PC += 2
}

// execD -- Dxyn DRW. Sprite reads are opcode-internal; a translation
// failure here is fatal rather than reported through VF, per the
// address-translation contract in the address-translation component.
func (e *Engine) execD(m Machine, instr uint16) {
	regs := m.Regs()
	x := uint32(regs.V[opx(instr)]) % 64
	y := uint32(regs.V[opy(instr)]) % 32
	n := int(opz(instr))

	sprite, err := m.ReadBytes(uint32(regs.I), n)
	if err != nil {
		e.fatal(m, "DRW: sprite read at %#04x out of range", regs.I)
		return
	}

	if m.Display().DrawSprite(int(x), int(y), sprite) {
		regs.SetVF(1)
	} else {
		regs.SetVF(0)
	}
	regs.PC += 2
}

// execE -- Ex9E/ExA1 key skip family.
func (e *Engine) execE(m Machine, instr uint16) {
	regs := m.Regs()
	key := regs.V[opx(instr)] & 0xF

	switch opkk(instr) {
	case 0x9E:
		if m.Display().KeyDown(key) {
			regs.PC += 4
		} else {
			regs.PC += 2
		}
	case 0xA1:
		if !m.Display().KeyDown(key) {
			regs.PC += 4
		} else {
			regs.PC += 2
		}
	default:
		e.fatal(m, "Ex%02X: unknown key opcode %#04x", opkk(instr), instr)
	}
}

// execF -- the Fx.. family: timers, key wait, font, BCD, block copy.
func (e *Engine) execF(m Machine, instr uint16) Outcome {
	regs := m.Regs()
	x := opx(instr)

	switch opkk(instr) {
	case 0x07:
		regs.V[x] = regs.DT
		regs.PC += 2

	case 0x0A:
		key, ok := m.Display().TakeLastReleasedKey()
		if !ok {
			return Outcome{Kind: Blocked, Block: BlockReason{Kind: BlockKeyWait, DestReg: x}}
		}
		regs.V[x] = key
		regs.PC += 2

	case 0x15:
		regs.DT = regs.V[x]
		regs.PC += 2

	case 0x18:
		regs.ST = regs.V[x]
		regs.PC += 2

	case 0x1E:
		regs.I = uint16((uint32(regs.I) + uint32(regs.V[x])) % m.VMSize())
		regs.PC += 2

	case 0x29:
		regs.I = uint16(regs.V[x]&0xF) * 5
		regs.PC += 2

	case 0x33:
		val := regs.V[x]
		e1 := m.WriteU8(uint32(regs.I), val/100)
		e2 := m.WriteU8(uint32(regs.I)+1, (val/10)%10)
		e3 := m.WriteU8(uint32(regs.I)+2, val%10)
		if e1 != nil || e2 != nil || e3 != nil {
			e.fatal(m, "Fx33: BCD write at %#04x out of range", regs.I)
			return Outcome{Kind: Completed}
		}
		regs.PC += 2

	case 0x55:
		for i := uint16(0); i <= uint16(x); i++ {
			if err := m.WriteU8(uint32(regs.I+i), regs.V[i]); err != nil {
				e.fatal(m, "Fx55: write at %#04x out of range", regs.I+i)
				return Outcome{Kind: Completed}
			}
		}
		regs.I += uint16(x) + 1
		regs.PC += 2

	case 0x65:
		for i := uint16(0); i <= uint16(x); i++ {
			v, err := m.ReadU8(uint32(regs.I + i))
			if err != nil {
				e.fatal(m, "Fx65: read at %#04x out of range", regs.I+i)
				return Outcome{Kind: Completed}
			}
			regs.V[i] = v
		}
		regs.I += uint16(x) + 1
		regs.PC += 2

	default:
		e.fatal(m, "Fx%02X: unknown opcode %#04x", opkk(instr), instr)
	}

	return Outcome{Kind: Completed}
}

// fatal logs and terminates the process for an unrecoverable
// opcode-internal error: an unknown opcode or a translation failure
// that isn't a syscall (spec: "process-fatal errors").
func (e *Engine) fatal(m Machine, format string, args ...interface{}) {
	e.logf("cpu: "+format+", exiting process", args...)
	m.Exit(0xFF)
}
