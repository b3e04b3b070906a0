package macho

import "github.com/pkg/errors"

// Flush writes the symbol table, relocation entries, module table and two-level hints
// back into the image's view. Load commands are not touched.
func (img *Image) Flush() error {
	v := img.View
	o := v.ByteOrder()

	if st := img.Symtab; st != nil {
		for i, n := range img.Symbols {
			e, err := v.Slice(st.Symoff+uint32(i)*nlistSize, nlistSize)
			if err != nil {
				return errors.Wrapf(err, "symbol %d", i)
			}
			o.PutUint32(e, n.Name)
			e[4] = byte(n.Type)
			e[5] = n.Sect
			o.PutUint16(e[6:], uint16(n.Desc))
			o.PutUint32(e[8:], n.Value)
		}
	}

	dt := img.Dysymtab
	if dt == nil {
		return nil
	}
	if err := img.writeRelocs(dt.Extreloff, img.ExtRelocs); err != nil {
		return errors.Wrap(err, "external relocations")
	}
	if err := img.writeRelocs(dt.Locreloff, img.LocRelocs); err != nil {
		return errors.Wrap(err, "local relocations")
	}
	for i, m := range img.Modules {
		off := dt.Modtaboff + uint32(i)*moduleSize
		for j, w := range []uint32{
			m.Name, m.Iextdefsym, m.Nextdefsym, m.Irefsym, m.Nrefsym, m.Ilocalsym, m.Nlocalsym,
			m.Iextrel, m.Nextrel, m.IinitIterm, m.NinitNterm, m.ObjcModuleInfoAddr, m.ObjcModuleInfoSize,
		} {
			if err := v.PutUint32(off+uint32(j)*4, w); err != nil {
				return errors.Wrapf(err, "module %d", i)
			}
		}
	}
	for i, r := range img.Refs {
		if err := v.PutUint32(dt.Extrefsymoff+uint32(i)*4, encodeReference(r, o)); err != nil {
			return errors.Wrapf(err, "reference %d", i)
		}
	}
	if h := img.HintsCmd; h != nil {
		for i, hint := range img.Hints {
			if err := v.PutUint32(h.HintOff+uint32(i)*4, encodeHint(hint, o)); err != nil {
				return errors.Wrapf(err, "two-level hint %d", i)
			}
		}
	}
	return nil
}

func (img *Image) writeRelocs(off uint32, relocs []Reloc) error {
	o := img.Order()
	for i, r := range relocs {
		w0, w1, err := r.Encode(o)
		if err != nil {
			return errors.Wrapf(err, "entry %d", i)
		}
		if err := img.View.PutUint32(off+uint32(i)*relocSize, w0); err != nil {
			return err
		}
		if err := img.View.PutUint32(off+uint32(i)*relocSize+4, w1); err != nil {
			return err
		}
	}
	return nil
}
