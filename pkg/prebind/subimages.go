package prebind

// computeAllSubImages computes the sub-images of every library. A library is ready once
// all the libraries it re-exports are; a pass that readies nothing means they form a cycle.
func (c *Context) computeAllSubImages() error {
	pending := append([]*Library{c.arch}, c.libs...)
	for len(pending) > 0 {
		var next []*Library
		for _, lib := range pending {
			if !c.computeSubImages(lib) {
				next = append(next, lib)
			}
		}
		if len(next) == len(pending) {
			e := &SubImageCycleError{}
			for _, lib := range next {
				e.Libraries = append(e.Libraries, lib.Path)
			}
			return e
		}
		pending = next
	}
	return nil
}

// computeSubImages returns false if a library lib re-exports has not been done yet.
func (c *Context) computeSubImages(lib *Library) bool {
	if lib.subDone {
		return true
	}
	var direct []*Library
	for i, dep := range lib.Dependents {
		if dep == nil || dep.weakMissing || dep == lib {
			continue
		}
		if isSubImage(lib, i, dep) {
			direct = append(direct, dep)
		}
	}
	for _, dep := range direct {
		if !dep.subDone {
			return false
		}
	}
	seen := map[*Library]bool{lib: true}
	add := func(l *Library) {
		if !seen[l] {
			seen[l] = true
			lib.SubImages = append(lib.SubImages, l)
		}
	}
	for _, dep := range direct {
		add(dep)
		for _, s := range dep.SubImages {
			add(s)
		}
	}
	lib.subDone = true
	if len(lib.SubImages) > 0 {
		c.log.Debugf("%s re-exports %d libraries", lib.Name, len(lib.SubImages))
	}
	return true
}

// isSubImage reports whether dependent i of lib, dep, is re-exported by lib.
func isSubImage(lib *Library, i int, dep *Library) bool {
	if lib.Image.Dylibs[i].Reexport() {
		return true
	}
	if dep.Image.SubFramework != "" && lib.framework && dep.Image.SubFramework == lib.short {
		return true
	}
	names := lib.Image.SubLibraries
	if dep.framework {
		names = lib.Image.SubUmbrellas
	}
	for _, name := range names {
		if name == dep.short {
			return true
		}
	}
	return false
}
