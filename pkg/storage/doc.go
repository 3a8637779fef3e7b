/*
Package storage provides the bbolt-backed workflow system of record.

The Store holds processes, routes, route groups, contacts, messages and
namespaced properties, each kind in its own bucket. Values are JSON, keys are
big-endian ids so bucket iteration follows id order.

# Architecture

	┌──────────────────── workflow.db (bbolt) ────────────────────┐
	│                                                               │
	│  processes          id → Process                              │
	│  routes             id → Route                                │
	│  route_groups       id → RouteGroup                           │
	│  contacts           id → Contact                              │
	│  messages           uuid → Message                            │
	│  properties         entity id / namespace / name → value      │
	│  server_properties  namespace / name → value                  │
	│                                                               │
	└───────────────────────────────────────────────────────────────┘
	        ▲                                   ▲
	        │ Begin (read-write Tx)             │ View (Reader)
	    manager, api seeding               api status, CLI reads

Ids are assigned from each bucket's sequence when an entity is created with
a zero id. Seeding may supply explicit ids; the sequence is not rewound.

# Core Components

Store:
  - Begin opens the single read-write transaction
  - View runs a read-only function against a consistent snapshot
  - Close releases the file lock

Reader:
  - Lookups by id, listings by state, properties and messages
  - ListQueued returns queued, unarchived processes joined with their
    routes, highest priority first and then by id, capped at the batch
    size; processes without a route are left out

Tx:
  - Everything in Reader plus create, update, state and property writes
  - Commit, Rollback and Flush

# Transactions

The manager handles every command inside one read-write transaction:

	tx, err := store.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op after Commit

	if err := tx.SetProcessState(id, types.ProcessStateQueued); err != nil {
		return err
	}
	return tx.Commit()

bbolt allows a single writer, so only one transaction may be open at a time.
Flush commits the work done so far and continues in a fresh transaction;
the manager uses it to make a run-lock token durable before it asks an
executor to start the process.

Read-only access does not wait for the writer:

	err := store.View(func(r storage.Reader) error {
		process, err := r.GetProcess(id)
		if err != nil {
			return err
		}
		fmt.Println(process.State)
		return nil
	})

# Properties

Properties are string values keyed by entity id, namespace and name. Server
properties are keyed by namespace and name only and hold daemon-wide values
such as the engine status.

	tx.SetProperty(pid, manager.PropertyNamespace, manager.PropertyLockToken, token)
	value, found, err := tx.GetProperty(pid, manager.PropertyNamespace, manager.PropertyWaitingOnLabel)

A missing property is reported through found, not through ErrNotFound.
Missing entities are reported with ErrNotFound, wrapped with the id.

# Messages

Messages belong to a process and carry a label. FindMessage looks up the
message with a given label, which is how parked processes waiting on a label
learn that their input has arrived.

# Data Integrity

  - Every write happens inside a bbolt transaction and is fsynced on commit
  - A failed command rolls back all of its writes together
  - The file lock keeps a second daemon from opening the same data directory

# Troubleshooting

Timeout opening the database:
  - Another workflowd holds workflow.db
  - Use the CLI against the running server instead of opening the file

# See Also

  - pkg/lock, which keeps run-lock grants in its own bbolt file
  - pkg/manager for the transaction-per-command pattern
*/
package storage
