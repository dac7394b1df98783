package state

// Reorganize corrects an identified fork. The chain and every engine are
// reset to genesis and the node resyncs from its peers. No sealing is
// allowed to take place while this process is running. New transactions
// can still be placed into the mempool.
func (s *State) Reorganize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Don't allow sealing to continue.
	s.allowSealing = false

	// Reset the database and the engines back to genesis. The engines are
	// rebuilt because their state is derived from the blocks being thrown
	// away.
	s.mempool.Truncate()
	if err := s.db.Reset(); err != nil {
		return err
	}
	if err := s.buildEngines(); err != nil {
		return err
	}

	// Resync the chain from the peers.
	s.resyncWG.Add(1)
	go func() {
		s.evHandler("state: Reorganize: resync started")
		defer func() {
			s.turnSealingOn()
			s.evHandler("state: Reorganize: resync completed")
			s.resyncWG.Done()
		}()

		s.Worker.Sync()
	}()

	return nil
}

// turnSealingOn sets the allowSealing flag back to true.
func (s *State) turnSealingOn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowSealing = true
}
