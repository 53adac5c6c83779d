package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS balances (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transactions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL CHECK (type IN ('debit', 'deposit')),
	amount     INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);

CREATE TABLE IF NOT EXISTS predictors (
	name TEXT PRIMARY KEY,
	cost INTEGER NOT NULL CHECK (cost >= 0)
);

CREATE TABLE IF NOT EXISTS prediction_batches (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        TEXT NOT NULL,
	predictor_name TEXT NOT NULL REFERENCES predictors(name),
	transaction_id INTEGER REFERENCES transactions(id),
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prediction_batches_user ON prediction_batches(user_id, created_at);

CREATE TABLE IF NOT EXISTS predictions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id      INTEGER NOT NULL REFERENCES prediction_batches(id) ON DELETE CASCADE,
	n_days        INTEGER NOT NULL,
	drug          TEXT NOT NULL,
	age           INTEGER NOT NULL,
	sex           TEXT NOT NULL,
	ascites       TEXT NOT NULL,
	hepatomegaly  TEXT NOT NULL,
	spiders       TEXT NOT NULL,
	edema         TEXT NOT NULL,
	bilirubin     REAL NOT NULL,
	cholesterol   REAL NOT NULL,
	albumin       REAL NOT NULL,
	copper        REAL NOT NULL,
	alk_phos      REAL NOT NULL,
	sgot          REAL NOT NULL,
	tryglicerides REAL NOT NULL,
	platelets     REAL NOT NULL,
	prothrombin   REAL NOT NULL,
	stage         INTEGER NOT NULL,
	answer        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_batch ON predictions(batch_id);
`
