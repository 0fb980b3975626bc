package modsim

func (b *bitBank) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bits)
}

func (b *wordBank) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.words)
}
