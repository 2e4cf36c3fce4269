package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/httplog"
	_ "github.com/jackc/pgx/v5/stdlib"

	"art-chat/internal/chatserver"
)

var (
	addr   = flag.String("addr", ":8089", "address to serve on")
	boltDB = flag.String("db", "art-chat.db", "bolt database path used when DATABASE_URL is unset")
)

func main() {
	flag.Parse()
	logger := httplog.NewLogger("chat-server", httplog.Options{JSON: false})

	var (
		store   chatserver.Store
		backend string
	)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("db ping: %v", err)
		}
		pg := chatserver.NewPGStore(db)
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		store, backend = pg, "postgres"
	} else {
		log.Printf("DATABASE_URL not set; persisting to bolt db at %s", *boltDB)
		bolt, err := chatserver.OpenBoltStore(*boltDB)
		if err != nil {
			log.Fatalf("open bolt db: %v", err)
		}
		store, backend = bolt, "bolt"
	}
	defer store.Close()

	s := chatserver.New(store, backend)
	log.Printf("chat server running at %s (backend: %s)", *addr, backend)
	if err := http.ListenAndServe(*addr, httplog.RequestLogger(logger)(s.Router())); err != nil {
		log.Fatalf("chat server stopped: %v", err)
	}
}
