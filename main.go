package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"milltrack/internal/auth"
	"milltrack/internal/config"
	"milltrack/internal/handlers/admin"
	"milltrack/internal/handlers/beam"
	"milltrack/internal/handlers/grey"
	"milltrack/internal/handlers/orderbook"
	"milltrack/internal/handlers/reports"
	"milltrack/internal/handlers/sizing"
	"milltrack/internal/handlers/warping"
	"milltrack/internal/response"
	"milltrack/internal/server"
	"milltrack/internal/store"
	"milltrack/internal/websocket"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed: ", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	db, err := initDB(cfg.DBPath)
	if err != nil {
		log.Fatal("DB init failed: ", err)
	}
	if err := seedDB(db); err != nil {
		log.Fatal("DB seed failed: ", err)
	}
	if err := auth.PurgeExpiredSessions(db); err != nil {
		log.Printf("session purge failed: %v", err)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		log.Fatal("store init failed: ", err)
	}
	if err := st.Init(store.All...); err != nil {
		log.Fatal("store init failed: ", err)
	}

	hub := websocket.NewHub()
	lockout := auth.NewLockout()

	app := &server.App{DB: db, Store: st, Hub: hub, Config: cfg, Lockout: lockout}
	mux := routes(app)

	rl := server.NewRateLimiter()
	handler := server.LoggingMiddleware(
		server.SecurityHeaders(
			server.RateLimitMiddleware(rl)(
				server.RequireAuth(db)(mux))))

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("milltrack server starting on http://localhost%s (data: %s)", addr, cfg.DataDir)
	log.Fatal(http.ListenAndServe(addr, handler))
}

// routes wires the stage handlers into one /api/v1 router.
func routes(app *server.App) *http.ServeMux {
	adminH := &admin.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub, Lockout: app.Lockout}
	orderbookH := &orderbook.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub}
	warpingH := &warping.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub}
	sizingH := &sizing.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub}
	beamH := &beam.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub, Config: app.Config}
	greyH := &grey.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub, Config: app.Config}
	reportsH := &reports.Handler{DB: app.DB, Store: app.Store, Hub: app.Hub, Config: app.Config}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(app.Hub, w, r)
	})

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		// Weaving locations carry a slash ("212/1"), so location routes
		// rejoin the trailing segments.
		location := ""
		if len(parts) >= 3 {
			location = strings.Join(parts[2:], "/")
		}

		switch {
		case path == "health" && r.Method == "GET":
			response.JSON(w, map[string]string{"status": "ok"})

		// Auth
		case path == "auth/login" && r.Method == "POST":
			adminH.Login(w, r)
		case path == "auth/logout" && r.Method == "POST":
			adminH.Logout(w, r)
		case path == "auth/me" && r.Method == "GET":
			adminH.Me(w, r)

		// Dashboard
		case path == "dashboard/delayed" && r.Method == "GET":
			reportsH.Delayed(w, r)
		case path == "dashboard/statuses" && r.Method == "GET":
			reportsH.Statuses(w, r)
		case path == "dashboard/summary" && r.Method == "GET":
			reportsH.Summary(w, r)
		case path == "dashboard/export" && r.Method == "GET":
			reportsH.ExportDelayed(w, r)

		// Orderbook
		case path == "orderbook" && r.Method == "GET":
			orderbookH.List(w, r)
		case path == "orderbook" && r.Method == "DELETE":
			orderbookH.Delete(w, r)
		case path == "orderbook/import" && r.Method == "POST":
			orderbookH.Import(w, r)
		case path == "orderbook/export" && r.Method == "GET":
			orderbookH.Export(w, r)
		case path == "orderbook/close" && r.Method == "POST":
			orderbookH.Close(w, r)
		case path == "orderbook/closed" && r.Method == "GET":
			orderbookH.ListClosed(w, r)
		case path == "orderbook/orders" && r.Method == "GET":
			orderbookH.Orders(w, r)
		case path == "orderbook/designs" && r.Method == "GET":
			orderbookH.Designs(w, r)

		// Warping
		case path == "warping/production" && r.Method == "GET":
			warpingH.ListProduction(w, r)
		case path == "warping/production" && r.Method == "POST":
			warpingH.CreateProduction(w, r)
		case path == "warping/available-beams" && r.Method == "GET":
			warpingH.AvailableBeams(w, r)
		case path == "warping/beam" && r.Method == "GET":
			warpingH.BeamDetails(w, r)
		case path == "warping/quantity" && r.Method == "GET":
			warpingH.QuantityBalance(w, r)
		case path == "warping/dispatch" && r.Method == "GET":
			warpingH.ListDispatch(w, r)
		case path == "warping/dispatch" && r.Method == "POST":
			warpingH.CreateDispatch(w, r)
		case path == "warping/export" && r.Method == "GET":
			warpingH.Export(w, r)

		// Sizing
		case path == "sizing/available-beams" && r.Method == "GET":
			sizingH.AvailableBeams(w, r)
		case path == "sizing/production" && r.Method == "GET":
			sizingH.ListProduction(w, r)
		case path == "sizing/production" && r.Method == "POST":
			sizingH.CreateProduction(w, r)
		case path == "sizing/available-dispatch" && r.Method == "GET":
			sizingH.AvailableDispatch(w, r)
		case path == "sizing/dispatch" && r.Method == "GET":
			sizingH.ListDispatch(w, r)
		case path == "sizing/dispatch" && r.Method == "POST":
			sizingH.CreateDispatch(w, r)
		case path == "sizing/export" && r.Method == "GET":
			sizingH.Export(w, r)

		// Beam on loom
		case path == "beam/locations" && r.Method == "GET":
			beamH.Locations(w, r)
		case parts[0] == "beam" && len(parts) >= 3 && parts[1] == "available-beams" && r.Method == "GET":
			beamH.AvailableBeams(w, r, location)
		case parts[0] == "beam" && len(parts) >= 3 && parts[1] == "available-looms" && r.Method == "GET":
			beamH.AvailableLooms(w, r, location)
		case parts[0] == "beam" && len(parts) >= 3 && parts[1] == "active-looms" && r.Method == "GET":
			beamH.ActiveLooms(w, r, location)
		case path == "beam/initiate" && r.Method == "GET":
			beamH.ListInitiations(w, r)
		case path == "beam/initiate" && r.Method == "POST":
			beamH.Initiate(w, r)
		case path == "beam/status" && r.Method == "GET":
			beamH.ListEvents(w, r)
		case path == "beam/status" && r.Method == "POST":
			beamH.RecordStatus(w, r)
		case path == "beam/next-status" && r.Method == "GET":
			beamH.NextStatus(w, r)
		case parts[0] == "beam" && len(parts) == 4 && parts[1] == "loom" && parts[3] == "latest" && r.Method == "GET":
			beamH.LoomLatest(w, r, parts[2])

		// Grey production
		case path == "grey/available-beams" && r.Method == "GET":
			greyH.AvailableBeams(w, r)
		case parts[0] == "grey" && len(parts) >= 3 && parts[1] == "available-looms" && r.Method == "GET":
			greyH.AvailableLooms(w, r, location)
		case path == "grey/production" && r.Method == "GET":
			greyH.ListProduction(w, r)
		case path == "grey/import" && r.Method == "POST":
			greyH.Import(w, r)
		case path == "grey/dispatch" && r.Method == "GET":
			greyH.ListDispatch(w, r)
		case path == "grey/dispatch" && r.Method == "POST":
			greyH.Dispatch(w, r)
		case path == "grey/loom-production" && r.Method == "GET":
			greyH.ListLoomProduction(w, r)
		case path == "grey/loom-production" && r.Method == "POST":
			greyH.CreateLoomProduction(w, r)
		case path == "grey/export" && r.Method == "GET":
			greyH.Export(w, r)

		// Admin
		case path == "admin/users" && r.Method == "GET":
			if server.RequireAdmin(w, r) {
				adminH.ListUsers(w, r)
			}
		case path == "admin/users" && r.Method == "POST":
			if server.RequireAdmin(w, r) {
				adminH.CreateUser(w, r)
			}
		case parts[0] == "admin" && len(parts) == 3 && parts[1] == "users" && r.Method == "PUT":
			if server.RequireAdmin(w, r) {
				adminH.UpdateUser(w, r, parts[2])
			}
		case parts[0] == "admin" && len(parts) == 3 && parts[1] == "users" && r.Method == "DELETE":
			if server.RequireAdmin(w, r) {
				adminH.DeleteUser(w, r, parts[2])
			}
		case path == "admin/operators" && r.Method == "GET":
			adminH.ListOperators(w, r)
		case path == "admin/operators" && r.Method == "POST":
			adminH.SaveOperator(w, r)
		case path == "admin/operators" && r.Method == "DELETE":
			adminH.DeleteOperator(w, r)
		case path == "admin/audit" && r.Method == "GET":
			if server.RequireAdmin(w, r) {
				adminH.AuditLog(w, r)
			}

		default:
			response.Err(w, "not found", 404)
		}
	})

	return mux
}
