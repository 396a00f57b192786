package db

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedNames = []struct {
	first, gender string
}{
	{"Aarav", "male"}, {"Bibek", "male"}, {"Kiran", "male"}, {"Nischal", "male"},
	{"Prabin", "male"}, {"Rajesh", "male"}, {"Sagar", "male"}, {"Ujjwal", "male"},
	{"Anisha", "female"}, {"Bina", "female"}, {"Diksha", "female"}, {"Gita", "female"},
	{"Muna", "female"}, {"Pooja", "female"}, {"Sita", "female"}, {"Srijana", "female"},
}

var seedCities = []struct{ city, district, province string }{
	{"Kathmandu", "Kathmandu", "Bagmati"},
	{"Lalitpur", "Lalitpur", "Bagmati"},
	{"Pokhara", "Kaski", "Gandaki"},
	{"Biratnagar", "Morang", "Koshi"},
	{"Butwal", "Rupandehi", "Lumbini"},
}

var seedInterests = []string{
	"hiking", "music", "cooking", "travel", "photography",
	"reading", "football", "cricket", "movies", "yoga",
}

// SeedTestData resets the database and populates it with demo accounts,
// mutual likes that become matches, and a few conversations.
//
// Behavior:
//  1. Clears all application tables.
//  2. Creates 16 users with profiles, preferences and interests. Every
//     account signs in with the password "password".
//  3. Makes each user like several others; mutual likes get a match with a
//     conversation and a short message history.
func SeedTestData(gdb *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	tables := []string{
		"messages", "conversations", "matches", "swipes", "recommendations",
		"notifications", "push_subscriptions", "payments", "subscriptions",
		"reports", "blocks", "agent_logs", "photos", "interests",
		"user_preferences", "profiles", "users",
	}
	for _, t := range tables {
		if err := gdb.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	userIDs := make([]string, 0, len(seedNames))
	genders := map[string]string{}

	for i, n := range seedNames {
		email := fmt.Sprintf("%s@example.com", strings.ToLower(n.first))
		loc := seedCities[i%len(seedCities)]
		now := time.Now()

		user := User{
			Email:          email,
			PasswordHash:   string(hash),
			IsVerified:     true,
			ConsentGiven:   true,
			ConsentGivenAt: &now,
		}
		age := 22 + r.Intn(10)
		profile := Profile{
			FirstName:       n.first,
			DateOfBirth:     now.AddDate(-age, -r.Intn(12), 0),
			Gender:          n.gender,
			Province:        loc.province,
			District:        loc.district,
			City:            loc.city,
			Bio:             fmt.Sprintf("Hi, I am %s from %s. I enjoy %s and %s.", n.first, loc.city, seedInterests[i%len(seedInterests)], seedInterests[(i+3)%len(seedInterests)]),
			Religion:        "hindu",
			Education:       "bachelors",
			IsVisible:       true,
			CompletionScore: 60 + r.Intn(41),
		}

		err := gdb.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			profile.UserID = user.ID
			if err := tx.Create(&profile).Error; err != nil {
				return err
			}

			wants := "female"
			if n.gender == "female" {
				wants = "male"
			}
			prefs := UserPreference{
				UserID:           user.ID,
				LookingForGender: []string{wants},
				AgeMin:           20,
				AgeMax:           35,
			}
			if err := tx.Create(&prefs).Error; err != nil {
				return err
			}

			for j := 0; j < 3; j++ {
				interest := Interest{
					ProfileID: profile.ID,
					Name:      seedInterests[(i+j*2)%len(seedInterests)],
				}
				if err := tx.Create(&interest).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", email, err)
		}

		userIDs = append(userIDs, user.ID)
		genders[user.ID] = n.gender
	}
	log.Printf("Seeded %d users.", len(userIDs))

	// Every user likes a handful of others. Every third like is made
	// mutual so matches exist out of the box.
	matches := 0
	for i, swiperID := range userIDs {
		for j := 0; j < 5; j++ {
			swipedID := userIDs[r.Intn(len(userIDs))]
			if swipedID == swiperID || genders[swipedID] == genders[swiperID] {
				continue
			}

			action := ActionLike
			if r.Intn(10) < 3 {
				action = ActionDislike
			}
			swipe := Swipe{SwiperID: swiperID, SwipedID: swipedID, Action: action}
			if err := gdb.Create(&swipe).Error; err != nil {
				continue // duplicate pair, skip
			}
			if action != ActionLike {
				continue
			}

			if (i+j)%3 == 0 {
				back := Swipe{SwiperID: swipedID, SwipedID: swiperID, Action: ActionLike}
				if err := gdb.Create(&back).Error; err != nil {
					continue
				}

				u1, u2 := swiperID, swipedID
				if u1 > u2 {
					u1, u2 = u2, u1
				}
				match := Match{User1ID: u1, User2ID: u2, InitiatedBy: swiperID}
				if err := gdb.Create(&match).Error; err != nil {
					continue
				}
				convo := Conversation{MatchID: match.ID, User1ID: u1, User2ID: u2}
				if err := gdb.Create(&convo).Error; err != nil {
					continue
				}
				matches++

				openers := []string{"Namaste! How are you?", "Hey, nice to match with you!", "Hi! Your profile caught my eye."}
				msg := Message{
					ConversationID: convo.ID,
					SenderID:       swiperID,
					Content:        openers[r.Intn(len(openers))],
				}
				if err := gdb.Create(&msg).Error; err == nil {
					gdb.Model(&convo).Updates(map[string]any{
						"total_messages":     1,
						"unread_count_user1": boolToInt(u1 != swiperID),
						"unread_count_user2": boolToInt(u2 != swiperID),
						"last_message_at":    msg.CreatedAt,
					})
				}
			}
		}
	}
	log.Printf("Seeded swipes and %d matches.", matches)

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
