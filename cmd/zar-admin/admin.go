package main

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/utils"
)

// upsertAdmin creates username, or resets its password when update is set.
func upsertAdmin(db *gorm.DB, username, password string, update bool) (models.Admin, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Admin{}, false, errors.New("--username is required")
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return models.Admin{}, false, err
	}

	var admin models.Admin
	err = db.Where("username = ?", username).First(&admin).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		admin = models.Admin{Username: username, PasswordHash: hash}
		if err := db.Create(&admin).Error; err != nil {
			return models.Admin{}, false, err
		}
		return admin, true, nil
	case err != nil:
		return models.Admin{}, false, err
	case !update:
		return models.Admin{}, false, fmt.Errorf("admin %q already exists (use --update to reset the password)", username)
	}

	if err := db.Model(&admin).Update("password_hash", hash).Error; err != nil {
		return models.Admin{}, false, err
	}
	return admin, false, nil
}

func issueToken(tokens *utils.TokenService, id uint, username string) (string, error) {
	if id == 0 {
		return "", errors.New("--id must be positive")
	}
	if strings.TrimSpace(username) == "" {
		return "", errors.New("--username is required")
	}
	return tokens.Issue(utils.Claims{"id": id, "username": username})
}
