package database

import (
	"context"
	"fmt"
)

// schema создаёт таблицы витрины, если их ещё нет.
// products.rating и products.review_count денормализованы и пересчитываются
// по событию review.approved; количество товаров в категории считается запросом.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	email      VARCHAR(255) NOT NULL UNIQUE,
	role       VARCHAR(32)  NOT NULL DEFAULT 'customer',
	created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS categories (
	id          BIGSERIAL PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	slug        VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	is_active   BOOLEAN      NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id                BIGSERIAL PRIMARY KEY,
	name              VARCHAR(255)   NOT NULL,
	slug              VARCHAR(255)   NOT NULL UNIQUE,
	description       TEXT           NOT NULL,
	short_description TEXT,
	price             NUMERIC(10, 2) NOT NULL CHECK (price > 0),
	sale_price        NUMERIC(10, 2),
	type              VARCHAR(16)    NOT NULL DEFAULT 'digital',
	category_id       BIGINT         NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	is_active         BOOLEAN        NOT NULL DEFAULT TRUE,
	is_featured       BOOLEAN        NOT NULL DEFAULT FALSE,
	downloads         INTEGER        NOT NULL DEFAULT 0,
	rating            NUMERIC(2, 1)  NOT NULL DEFAULT 0,
	review_count      INTEGER        NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
	CHECK (sale_price IS NULL OR sale_price < price)
);
CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id);
CREATE INDEX IF NOT EXISTS idx_products_is_active ON products(is_active);
CREATE INDEX IF NOT EXISTS idx_products_is_featured ON products(is_featured);
CREATE INDEX IF NOT EXISTS idx_products_type ON products(type);

CREATE TABLE IF NOT EXISTS coupons (
	id             BIGSERIAL PRIMARY KEY,
	code           VARCHAR(64)    NOT NULL UNIQUE,
	name           VARCHAR(255)   NOT NULL DEFAULT '',
	description    TEXT,
	type           VARCHAR(16)    NOT NULL,
	value          NUMERIC(10, 2) NOT NULL CHECK (value >= 0),
	minimum_amount NUMERIC(10, 2),
	usage_limit    INTEGER CHECK (usage_limit IS NULL OR usage_limit >= 0),
	used_count     INTEGER        NOT NULL DEFAULT 0 CHECK (used_count >= 0),
	starts_at      TIMESTAMPTZ    NOT NULL,
	expires_at     TIMESTAMPTZ    NOT NULL,
	is_active      BOOLEAN        NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
	CHECK (starts_at < expires_at),
	CHECK (usage_limit IS NULL OR used_count <= usage_limit)
);

CREATE TABLE IF NOT EXISTS orders (
	id              BIGSERIAL PRIMARY KEY,
	order_number    VARCHAR(32)    NOT NULL UNIQUE,
	user_id         BIGINT         NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	subtotal        NUMERIC(10, 2) NOT NULL,
	discount_amount NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (discount_amount >= 0),
	total           NUMERIC(10, 2) NOT NULL,
	status          VARCHAR(32)    NOT NULL DEFAULT 'pending',
	payment_status  VARCHAR(32)    NOT NULL DEFAULT 'pending',
	coupon_id       BIGINT REFERENCES coupons(id) ON DELETE SET NULL,
	notes           TEXT,
	created_at      TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ    NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status);

CREATE TABLE IF NOT EXISTS order_items (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT         NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id BIGINT         NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	quantity   INTEGER        NOT NULL CHECK (quantity > 0),
	price      NUMERIC(10, 2) NOT NULL,
	created_at TIMESTAMPTZ    NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_order_items_product_id ON order_items(product_id);

CREATE TABLE IF NOT EXISTS reviews (
	id          BIGSERIAL PRIMARY KEY,
	product_id  BIGINT      NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	user_id     BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	order_id    BIGINT      NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	rating      INTEGER     NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment     TEXT        NOT NULL,
	is_approved BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (product_id, user_id, order_id)
);
CREATE INDEX IF NOT EXISTS idx_reviews_product_id ON reviews(product_id);
CREATE INDEX IF NOT EXISTS idx_reviews_is_approved ON reviews(is_approved);
`

// Migrate применяет схему. Все выражения идемпотентны.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
