/*
Package lock grants exclusive, expiring run-locks on routes and route groups.

A Service keeps its grants in a dedicated bbolt file, locks.db, in the data
directory, separate from the workflow store so a lock operation never has to
join the manager's open store transaction. Each grant is stored as JSON under
its token.

# Grants

	Token      opaquelocktoken:<uuid>
	Target     route or route group, by id
	ContextID  the owner; singleton processes own their lock by process id
	Expires    now + requested duration
	Exclusive  always true for run-locks
	Run        marks locks taken to run a process

A request is refused while any unexpired exclusive grant on the same target
is held by a different context. Grants held by the same context never
contend, which is how every non-singleton process shares the administrative
context's locks.

	context 10000 holds R1 ──▶ context 10000 asks R1 ──▶ granted
	context 42    holds R1 ──▶ context 43    asks R1 ──▶ refused
	context 42    held  R1, expired ──▶ context 43 ──▶ granted, old grant pruned

# Administrative Operations

RefreshAdministratively and ReleaseAdministratively act on a token without
checking the caller's context. The manager is the only caller and acts for
whichever process owns the grant. Refreshing an expired grant fails and
deletes it; releasing reports whether a live grant was removed.

# Usage

	svc, err := lock.NewService(dataDir)
	if err != nil {
		return err
	}
	defer svc.Close()

	grant, ok, err := svc.Lock(lock.Request{
		Target:    types.LockTarget{Kind: types.LockTargetRoute, ID: 7, Name: "NightlyImport"},
		Duration:  time.Hour,
		Run:       true,
		ContextID: processID,
	})
	switch {
	case err != nil:
		return err
	case !ok:
		// another process holds the route
	}

	svc.RefreshAdministratively(grant.Token, 100*time.Hour)
	svc.ReleaseAdministratively(grant.Token)

Tests inject a clock with WithClock to move expiry without sleeping.
*/
package lock
