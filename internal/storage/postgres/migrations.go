package postgres

const schema = `
CREATE TABLE IF NOT EXISTS balances (
	user_id    TEXT PRIMARY KEY,
	balance    NUMERIC(20, 4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL CHECK (type IN ('debit', 'deposit')),
	amount     NUMERIC(20, 4) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);

CREATE TABLE IF NOT EXISTS predictors (
	name TEXT PRIMARY KEY,
	cost NUMERIC(20, 4) NOT NULL CHECK (cost >= 0)
);

CREATE TABLE IF NOT EXISTS prediction_batches (
	id             BIGSERIAL PRIMARY KEY,
	user_id        TEXT NOT NULL,
	predictor_name TEXT NOT NULL REFERENCES predictors(name),
	transaction_id BIGINT REFERENCES transactions(id),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_prediction_batches_user_created ON prediction_batches(user_id, created_at);

CREATE TABLE IF NOT EXISTS predictions (
	id            BIGSERIAL PRIMARY KEY,
	batch_id      BIGINT NOT NULL REFERENCES prediction_batches(id) ON DELETE CASCADE,
	n_days        INTEGER NOT NULL,
	drug          TEXT NOT NULL,
	age           INTEGER NOT NULL,
	sex           TEXT NOT NULL,
	ascites       TEXT NOT NULL,
	hepatomegaly  TEXT NOT NULL,
	spiders       TEXT NOT NULL,
	edema         TEXT NOT NULL,
	bilirubin     DOUBLE PRECISION NOT NULL,
	cholesterol   DOUBLE PRECISION NOT NULL,
	albumin       DOUBLE PRECISION NOT NULL,
	copper        DOUBLE PRECISION NOT NULL,
	alk_phos      DOUBLE PRECISION NOT NULL,
	sgot          DOUBLE PRECISION NOT NULL,
	tryglicerides DOUBLE PRECISION NOT NULL,
	platelets     DOUBLE PRECISION NOT NULL,
	prothrombin   DOUBLE PRECISION NOT NULL,
	stage         INTEGER NOT NULL,
	answer        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_batch ON predictions(batch_id);
`
