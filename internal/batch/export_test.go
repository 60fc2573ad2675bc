package batch

func (a *Accumulator) SlotCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots)
}
