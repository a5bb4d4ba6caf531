package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261019-120000",
		Description: "Record when the reconcile sweep last re-enqueued a stage",
		Up: []string{
			`ALTER TABLE stages ADD COLUMN dispatched_at TEXT`,
		},
	})
}
