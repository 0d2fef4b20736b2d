// math/mat4.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

///////////////////////////////////////////////////////////////////////////
// 4x4 matrix

// Matrix4 is a row-major 4x4 transformation matrix; it is used for the 3D
// viewing pipeline, where the map camera's tilt and rotation can't be
// expressed with a 2D matrix. Composition methods follow the same
// postmultiply convention as common scene graph math: m.Translate(...)
// returns a matrix that first translates and then applies m.
type Matrix4 [4][4]float32

func Identity4x4() Matrix4 {
	var m Matrix4
	m[0][0] = 1
	m[1][1] = 1
	m[2][2] = 1
	m[3][3] = 1
	return m
}

func (m Matrix4) PostMultiply(m2 Matrix4) Matrix4 {
	var result Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			result[i][j] = m[i][0]*m2[0][j] + m[i][1]*m2[1][j] + m[i][2]*m2[2][j] + m[i][3]*m2[3][j]
		}
	}
	return result
}

func (m Matrix4) Translate(x, y, z float32) Matrix4 {
	t := Identity4x4()
	t[0][3] = x
	t[1][3] = y
	t[2][3] = z
	return m.PostMultiply(t)
}

func (m Matrix4) Scale(x, y, z float32) Matrix4 {
	s := Identity4x4()
	s[0][0] = x
	s[1][1] = y
	s[2][2] = z
	return m.PostMultiply(s)
}

// RotateX rotates about the x axis; theta is given in radians and positive
// angles tilt +y toward +z.
func (m Matrix4) RotateX(theta float32) Matrix4 {
	s, c := Sin(theta), Cos(theta)
	r := Identity4x4()
	r[1][1], r[1][2] = c, -s
	r[2][1], r[2][2] = s, c
	return m.PostMultiply(r)
}

// RotateZ rotates about the z (up) axis; positive angles rotate +x toward
// +y.
func (m Matrix4) RotateZ(theta float32) Matrix4 {
	s, c := Sin(theta), Cos(theta)
	r := Identity4x4()
	r[0][0], r[0][1] = c, -s
	r[1][0], r[1][1] = s, c
	return m.PostMultiply(r)
}

// Perspective returns a right-handed perspective projection with the given
// vertical field of view (radians), aspect ratio, and near/far planes,
// looking down -z.
func Perspective(fovy, aspect, near, far float32) Matrix4 {
	f := 1 / Tan(fovy/2)
	var m Matrix4
	m[0][0] = f / aspect
	m[1][1] = f
	m[2][2] = (far + near) / (near - far)
	m[2][3] = 2 * far * near / (near - far)
	m[3][2] = -1
	return m
}

// TransformPoint transforms p and performs the homogeneous divide,
// returning the projected point. The returned w allows callers to reject
// points behind the camera.
func (m Matrix4) TransformPoint(p [3]float32) ([3]float32, float32) {
	var q [4]float32
	for i := 0; i < 4; i++ {
		q[i] = m[i][0]*p[0] + m[i][1]*p[1] + m[i][2]*p[2] + m[i][3]
	}
	if q[3] == 0 {
		return [3]float32{}, 0
	}
	inv := 1 / q[3]
	return [3]float32{q[0] * inv, q[1] * inv, q[2] * inv}, q[3]
}

// TransformVector transforms v as a direction, ignoring translation.
func (m Matrix4) TransformVector(v [3]float32) [3]float32 {
	return [3]float32{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}
