/*
Package client is the HTTP client used by the workflowd CLI and by
executors to send commands and seed entities.

	c := client.New(client.Config{BaseURL: "localhost:8080"})

	reply, err := c.Queue(ctx, 10234)
	if err != nil {
		return err // transport failure or an error body
	}
	fmt.Println(reply.Status, reply.Text) // 201 OK, 403 ..., 404 No such process

A bare host:port is expanded to http://host:port/v1. Manager replies come
back as api.ReplyResponse whatever their status, because a 403 or 404 from
the manager is an answer, not a failure. Seeding calls return the new id
and treat anything but 201 as an error.

An executor reports back with:

	c.ReportRunning(ctx, pid, true)
	c.ReportCompleted(ctx, pid)
	c.ReportFailed(ctx, pid)
	c.ReportParked(ctx, pid)
*/
package client
