package main

import (
	"errors"
	"fmt"
	"os"

	"homeservices/chatcore/internal/api/handler"
	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  seed <email> <name> <customer|worker>   create or update a user
  approve <email>                         make a worker visible to customers
  token <email> [qr.png]                  print a devserver token, optionally as a QR code
  export <roomId> <file.xlsx>             dump a room's history to a spreadsheet`

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel, nil)

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := db.AutoMigrate(&models.User{}, &models.ChatRoom{}, &models.ChatHistory{}, &models.MessageRead{}); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// no redis needed for admin commands
	s := storage.NewStorageService(db, nil)

	args := os.Args[2:]
	switch os.Args[1] {
	case "seed":
		if len(args) != 3 {
			fmt.Println("Usage: admin seed <email> <name> <customer|worker>")
			os.Exit(1)
		}
		user, err := seedUser(s, args[0], args[1], models.Role(args[2]))
		if err != nil {
			log.Fatal().Err(err).Msg("seed failed")
		}
		fmt.Printf("User %s (%s) saved with id %s\n", user.Email, user.Role, user.ID)

	case "approve":
		if len(args) != 1 {
			fmt.Println("Usage: admin approve <email>")
			os.Exit(1)
		}
		if err := approveWorker(s, args[0]); err != nil {
			log.Fatal().Err(err).Msg("approve failed")
		}
		fmt.Printf("Worker %s approved.\n", args[0])

	case "token":
		if len(args) < 1 || len(args) > 2 {
			fmt.Println("Usage: admin token <email> [qr.png]")
			os.Exit(1)
		}
		user, err := s.GetUserByEmail(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("unknown user")
		}
		token, err := handler.GenerateJWT([]byte(cfg.JWTSecret), *user, handler.TokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to sign token")
		}
		fmt.Println(token)
		if len(args) == 2 {
			if err := qrcode.WriteFile(token, qrcode.Medium, 256, args[1]); err != nil {
				log.Fatal().Err(err).Msg("failed to write QR code")
			}
			fmt.Printf("QR code written to %s\n", args[1])
		}

	case "export":
		if len(args) != 2 {
			fmt.Println("Usage: admin export <roomId> <file.xlsx>")
			os.Exit(1)
		}
		n, err := exportRoom(s, args[0], args[1])
		if err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
		fmt.Printf("%d messages written to %s\n", n, args[1])

	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

type userStore interface {
	GetUserByEmail(email string) (*models.User, error)
	SaveUser(user *models.User) error
}

// seedUser creates the user or updates name and role of an existing one.
func seedUser(s userStore, email, name string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	user, err := s.GetUserByEmail(email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user = &models.User{Email: email}
	case err != nil:
		return nil, err
	}
	user.DisplayName = name
	user.Role = role
	if err := s.SaveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

func approveWorker(s userStore, email string) error {
	user, err := s.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if user.Role != models.RoleWorker {
		return fmt.Errorf("%s is a %s, only workers need approval", email, user.Role)
	}
	user.Approved = true
	return s.SaveUser(user)
}
