package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261019-000000",
		Description: "Fulfillment schema: orders, stages, payments, artifacts, providers, jobs",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS orders (
				id TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL,
				context_json TEXT NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'PENDING',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

			`CREATE TABLE IF NOT EXISTS stages (
				id TEXT PRIMARY KEY,
				order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				price INTEGER NOT NULL DEFAULT 0,
				input_json TEXT NOT NULL DEFAULT '{}',
				error_reason TEXT,
				attempts INTEGER NOT NULL DEFAULT 0,
				cancel_requested INTEGER NOT NULL DEFAULT 0,
				paid_at TEXT,
				started_at TEXT,
				finished_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stages_order ON stages(order_id)`,
			`CREATE INDEX IF NOT EXISTS idx_stages_status_updated ON stages(status, updated_at)`,

			`CREATE TABLE IF NOT EXISTS payments (
				id TEXT PRIMARY KEY,
				order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				stage_id TEXT NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL UNIQUE,
				idempotency_key TEXT NOT NULL,
				gateway TEXT NOT NULL DEFAULT 'yookassa',
				status TEXT NOT NULL DEFAULT 'PENDING',
				amount INTEGER NOT NULL,
				currency TEXT NOT NULL,
				confirmation_url TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_stage ON payments(stage_id)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,

			`CREATE TABLE IF NOT EXISTS artifacts (
				id TEXT PRIMARY KEY,
				order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				stage_id TEXT REFERENCES stages(id) ON DELETE SET NULL,
				type TEXT NOT NULL,
				content TEXT NOT NULL,
				provider TEXT,
				model TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_order_type ON artifacts(order_id, type, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_stage ON artifacts(stage_id)`,

			`CREATE TABLE IF NOT EXISTS provider_configs (
				stage_type TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				credential_encrypted TEXT,
				folder_id TEXT,
				selected_model TEXT,
				available_models_json TEXT NOT NULL DEFAULT '[]',
				models_refreshed_at TEXT,
				status TEXT NOT NULL DEFAULT 'active',
				status_message TEXT,
				auto_reassigned_from TEXT,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS product_configs (
				code TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				price INTEGER NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				updated_at TEXT NOT NULL
			)`,
			`INSERT OR IGNORE INTO product_configs (code, title, price, is_active, updated_at)
				VALUES ('poem', 'Персональное стихотворение', 4900, 1, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`,
			`INSERT OR IGNORE INTO product_configs (code, title, price, is_active, updated_at)
				VALUES ('voice', 'Озвучка стихотворения', 9900, 1, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`,

			`CREATE TABLE IF NOT EXISTS content_policy (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				stop_words_json TEXT NOT NULL DEFAULT '[]',
				updated_at TEXT NOT NULL
			)`,
			`INSERT OR IGNORE INTO content_policy (id, stop_words_json, updated_at)
				VALUES (1, '[]', strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`,

			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				stage_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				deliveries INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				available_at TEXT NOT NULL,
				claimed_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status_available ON jobs(status, available_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_stage ON jobs(stage_id)`,
		},
	})
}
