package validators

import "go.mongodb.org/mongo-driver/bson"

// BookingDateValidator guards the occupancy index. The calendar date is
// the document _id, so the collection's primary key is what makes two
// claims of the same night impossible.
var BookingDateValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"booking_id",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "date",
			},

			"booking_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
